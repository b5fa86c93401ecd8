package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/config"
	"github.com/fluffypony/llm-proxifier/pkg/forwarder"
	"github.com/fluffypony/llm-proxifier/pkg/procutil"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
	"github.com/fluffypony/llm-proxifier/pkg/scheduler"
	"github.com/fluffypony/llm-proxifier/pkg/telemetry/metrics"
)

func newTestServer(t *testing.T) *http.ServeMux {
	t.Helper()
	queueMgr := queue.NewManager(nil)
	sched := scheduler.New(queueMgr, time.Minute, 4, nil)
	sched.LoadConfigs(map[string]config.ModelConfig{
		"alpha": {
			Name:          "alpha",
			Port:          18080,
			ModelPath:     "/models/alpha.gguf",
			ContextLength: 2048,
			Priority:      5,
			ResourceGroup: "default",
		},
	})
	fwd := forwarder.New(sched, queueMgr, nil)
	collector := metrics.NewCollector(nil)
	return newRouter(sched, queueMgr, fwd, collector, BuildInfo{Version: "test"})
}

func TestHealthEndpoint(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Status string `json:"status"`
		Models struct {
			Total   int                       `json:"total"`
			Active  int                       `json:"active"`
			Details map[string]scheduler.Status `json:"details"`
		} `json:"models"`
		System struct {
			Memory *procutil.SystemMemory `json:"memory"`
		} `json:"system"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" {
		t.Fatalf("status field = %q, want healthy", body.Status)
	}
	if body.Models.Total != 1 {
		t.Fatalf("models.total = %d, want 1", body.Models.Total)
	}
	if body.Models.Active != 0 {
		t.Fatalf("models.active = %d, want 0 (nothing started)", body.Models.Active)
	}
	if _, ok := body.Models.Details["alpha"]; !ok {
		t.Fatalf("expected models.details to include %q, got %+v", "alpha", body.Models.Details)
	}
}

func TestVersionEndpoint(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] != "test" {
		t.Fatalf("version = %q, want test", body["version"])
	}
}

func TestModelsListEndpoint(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Object string           `json:"object"`
		Data   []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Object != "list" || len(body.Data) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	entry := body.Data[0]
	if entry["id"] != "alpha" {
		t.Fatalf("data[0].id = %v, want alpha", entry["id"])
	}
	if entry["object"] != "model" {
		t.Errorf("data[0].object = %v, want model", entry["object"])
	}
	if entry["owned_by"] != "llama-cpp" {
		t.Errorf("data[0].owned_by = %v, want llama-cpp", entry["owned_by"])
	}
	if entry["root"] != "alpha" {
		t.Errorf("data[0].root = %v, want alpha", entry["root"])
	}
	if entry["parent"] != nil {
		t.Errorf("data[0].parent = %v, want nil", entry["parent"])
	}
	if _, ok := entry["permission"].([]any); !ok {
		t.Errorf("data[0].permission = %v, want an array", entry["permission"])
	}
	if entry["status"] != "unavailable" {
		t.Errorf("data[0].status = %v, want unavailable (never started)", entry["status"])
	}
}

func TestAdminStatusUnknownModelIs404(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/models/nonexistent/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestAdminStatusKnownModel(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/models/alpha/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var status scheduler.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != queue.Stopped {
		t.Fatalf("status.Status = %v, want Stopped", status.Status)
	}
}

func TestAdminGroupsEndpoint(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/groups", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var groups []scheduler.GroupStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &groups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(groups) != 1 || groups[0].Group != "default" || groups[0].Total != 1 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestForwardUnconfiguredModelIsUnavailable(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"does-not-exist"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestForwardMissingModelFieldIsBadRequest(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[]}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAdminQueueStatusEndpoint(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/queue/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}
