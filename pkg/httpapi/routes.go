package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/forwarder"
	"github.com/fluffypony/llm-proxifier/pkg/httperr"
	"github.com/fluffypony/llm-proxifier/pkg/procutil"
	"github.com/fluffypony/llm-proxifier/pkg/proxy/middleware"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
	"github.com/fluffypony/llm-proxifier/pkg/scheduler"
	"github.com/fluffypony/llm-proxifier/pkg/telemetry/metrics"
)

// fastTimeout bounds endpoints that only touch in-memory state.
const fastTimeout = 10 * time.Second

// lifecycleTimeout bounds endpoints that may start or stop a child
// process, which can itself take up to the instance readiness timeout.
const lifecycleTimeout = 70 * time.Second

func withTimeout(d time.Duration, h http.HandlerFunc) http.Handler {
	return middleware.TimeoutMiddleware(d)(h)
}

func newRouter(sched *scheduler.Manager, queueMgr *queue.Manager, fwd *forwarder.Forwarder, collector *metrics.Collector, build BuildInfo) *http.ServeMux {
	mux := http.NewServeMux()

	// Forwarding endpoints rely on the forwarder's own 300s outbound cap
	// and must not be cut short by a blanket middleware timeout.
	mux.HandleFunc("POST /v1/chat/completions", chatCompletionsHandler(fwd))
	mux.HandleFunc("POST /v1/completions", completionsHandler(fwd))
	mux.Handle("GET /v1/models", withTimeout(fastTimeout, modelsListHandler(sched)))

	mux.Handle("GET /health", withTimeout(fastTimeout, healthHandler(sched)))
	mux.Handle("GET /metrics", collector.Handler())
	mux.Handle("GET /version", withTimeout(fastTimeout, versionHandler(build)))

	mux.Handle("GET /admin/models", withTimeout(fastTimeout, adminModelsHandler(sched)))
	mux.Handle("POST /admin/models/start-all", withTimeout(lifecycleTimeout, adminStartAllHandler(sched)))
	mux.Handle("POST /admin/models/stop-all", withTimeout(lifecycleTimeout, adminStopAllHandler(sched)))
	mux.Handle("POST /admin/models/restart-all", withTimeout(lifecycleTimeout, adminRestartAllHandler(sched)))
	mux.Handle("POST /admin/models/{name}/start", withTimeout(lifecycleTimeout, adminStartHandler(sched)))
	mux.Handle("POST /admin/models/{name}/stop", withTimeout(lifecycleTimeout, adminStopHandler(sched)))
	mux.Handle("GET /admin/models/{name}/status", withTimeout(fastTimeout, adminStatusHandler(sched)))
	mux.Handle("POST /admin/models/{name}/reload", withTimeout(lifecycleTimeout, adminReloadHandler(sched)))

	mux.Handle("GET /admin/groups", withTimeout(fastTimeout, adminGroupsHandler(sched)))
	mux.Handle("POST /admin/groups/{group}/start", withTimeout(lifecycleTimeout, adminGroupStartHandler(sched)))
	mux.Handle("POST /admin/groups/{group}/stop", withTimeout(lifecycleTimeout, adminGroupStopHandler(sched)))

	mux.Handle("GET /admin/queue/status", withTimeout(fastTimeout, adminQueueStatusHandler(queueMgr)))
	mux.Handle("GET /admin/queue/{name}/status", withTimeout(fastTimeout, adminQueueModelStatusHandler(queueMgr)))
	mux.Handle("POST /admin/queue/{name}/clear", withTimeout(fastTimeout, adminQueueClearHandler(queueMgr)))

	return mux
}

func chatCompletionsHandler(fwd *forwarder.Forwarder) http.HandlerFunc {
	return forwardHandler(fwd, "/v1/chat/completions")
}

func completionsHandler(fwd *forwarder.Forwarder) http.HandlerFunc {
	return forwardHandler(fwd, "/v1/completions")
}

func forwardHandler(fwd *forwarder.Forwarder, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelName, ok := forwarder.ExtractModel(r)
		if !ok {
			httperr.Write(w, http.StatusBadRequest, httperr.InvalidRequest, "request body must be a JSON object with a \"model\" field")
			return
		}
		fwd.Handle(w, r, endpoint, modelName)
	}
}

func modelsListHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs := sched.GetModelsByPriority()
		data := make([]map[string]any, 0, len(configs))
		for _, c := range configs {
			status := "unavailable"
			if st, ok := sched.GetModelStatus(c.Name); ok && st.Status == queue.Running {
				status = "available"
			}
			data = append(data, map[string]any{
				"id":         c.Name,
				"object":     "model",
				"created":    0,
				"owned_by":   "llama-cpp",
				"permission": []any{},
				"root":       c.Name,
				"parent":     nil,
				"status":     status,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
	}
}

// healthHandler reports aggregate liveness: how many configured models are
// active, per-model status detail, and a host memory snapshot.
func healthHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := sched.GetAllModelStatus()
		active := 0
		for _, st := range statuses {
			if st.Status == queue.Running {
				active++
			}
		}

		var memory any
		if mem, ok := procutil.SampleSystemMemory(); ok {
			memory = mem
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status": "healthy",
			"models": map[string]any{
				"total":   len(statuses),
				"active":  active,
				"details": statuses,
			},
			"system": map[string]any{
				"memory": memory,
			},
		})
	}
}

func versionHandler(build BuildInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    build.Version,
			"git_commit": build.GitCommit,
			"build_date": build.BuildDate,
		})
	}
}

func adminModelsHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := sched.GetAllModelStatus()
		writeJSON(w, http.StatusOK, statuses)
	}
}

func adminStartAllHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sched.StartAll(r.Context()))
	}
}

func adminStopAllHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sched.StopAll())
	}
}

func adminRestartAllHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sched.RestartAll(r.Context()))
	}
}

func adminStartHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if _, exists := sched.GetModelStatus(name); !exists {
			httperr.Write(w, http.StatusNotFound, httperr.ModelNotFound, "model "+name+" is not configured")
			return
		}
		if _, ok := sched.GetOrStart(r.Context(), name); !ok {
			httperr.Write(w, http.StatusInternalServerError, httperr.StartFailed, "failed to start model "+name)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func adminStopHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if _, exists := sched.GetModelStatus(name); !exists {
			httperr.Write(w, http.StatusNotFound, httperr.ModelNotFound, "model "+name+" is not configured")
			return
		}
		if !sched.Stop(name) {
			httperr.Write(w, http.StatusInternalServerError, httperr.StopFailed, "failed to stop model "+name)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func adminStatusHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		status, exists := sched.GetModelStatus(name)
		if !exists {
			httperr.Write(w, http.StatusNotFound, httperr.ModelNotFound, "model "+name+" is not configured")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func adminReloadHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		result := sched.Reload(r.Context(), name, nil)
		if !result.Success {
			httperr.Write(w, http.StatusInternalServerError, httperr.ReloadFailed, result.Message)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func adminGroupsHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups := sched.GetResourceGroupStatus("")
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)
		ordered := make([]scheduler.GroupStatus, 0, len(names))
		for _, name := range names {
			ordered = append(ordered, groups[name])
		}
		writeJSON(w, http.StatusOK, ordered)
	}
}

func adminGroupStartHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := r.PathValue("group")
		writeJSON(w, http.StatusOK, sched.StartResourceGroup(r.Context(), group))
	}
}

func adminGroupStopHandler(sched *scheduler.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := r.PathValue("group")
		writeJSON(w, http.StatusOK, sched.StopResourceGroup(group))
	}
}

func adminQueueStatusHandler(queueMgr *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, queueMgr.AllStats())
	}
}

func adminQueueModelStatusHandler(queueMgr *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		writeJSON(w, http.StatusOK, queueMgr.Stats(name))
	}
}

func adminQueueClearHandler(queueMgr *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		queueMgr.Clear(name)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
