// Package forwarder implements the reverse-proxy Proxy Forwarder: it pulls
// the model name out of an inbound request, asks the scheduler for a ready
// instance (queueing or rejecting when one isn't available yet), and
// proxies bytes — streaming or buffered — to the selected instance.
package forwarder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/httperr"
	"github.com/fluffypony/llm-proxifier/pkg/instance"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
)

// outboundTimeout bounds a single forwarded request.
const outboundTimeout = 300 * time.Second

var hopHeaders = map[string]struct{}{
	"Host":              {},
	"Content-Length":    {},
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding":  {},
	"Te":                {},
	"Trailer":           {},
	"Upgrade":           {},
	"Proxy-Connection":  {},
}

// ModelProvider is the subset of the scheduler the forwarder depends on.
type ModelProvider interface {
	GetOrStart(ctx context.Context, name string) (*instance.Instance, bool)
}

// Forwarder proxies client requests to the instance the scheduler selects,
// queueing behind a starting/reloading model and classifying upstream
// failures into the §6 error vocabulary.
type Forwarder struct {
	models   ModelProvider
	queueMgr *queue.Manager
	client   *http.Client
	logger   *slog.Logger
}

// New creates a Forwarder. models is typically *scheduler.Manager.
func New(models ModelProvider, queueMgr *queue.Manager, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		models:   models,
		queueMgr: queueMgr,
		client:   &http.Client{Timeout: outboundTimeout},
		logger:   logger,
	}
}

// ExtractModel parses the JSON request body looking for a "model" field,
// and restores r.Body so it can be read again downstream (the body is
// buffered once). Returns ("", false) on malformed JSON, a missing field,
// or a non-object body.
func ExtractModel(r *http.Request) (string, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", false
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var payload struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false
	}
	if payload.Model == "" {
		return "", false
	}
	return payload.Model, true
}

// Handle implements §4.E's handle operation: queue behind a starting
// model, reject on a full queue or an unavailable model, otherwise
// forward.
func (f *Forwarder) Handle(w http.ResponseWriter, r *http.Request, endpoint, modelName string) {
	clientID := r.RemoteAddr

	if f.queueMgr.ShouldQueue(modelName) {
		requestID, accepted := f.queueMgr.Enqueue(modelName, clientID, endpoint)
		if !accepted {
			w.Header().Set("Retry-After", "60")
			httperr.Write(w, http.StatusServiceUnavailable, httperr.ServiceUnavailable,
				fmt.Sprintf("queue for model %q is full", modelName))
			return
		}

		state := f.queueMgr.GetState(modelName)
		position := f.queueMgr.QueueSize(modelName)

		w.Header().Set("Retry-After", "30")
		w.Header().Set("X-Queue-Position", fmt.Sprintf("%d", position))
		w.Header().Set("X-Queue-Model-State", string(state))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":     "request queued, retry shortly",
			"request_id":  requestID,
			"position":    position,
			"model_state": state,
		})
		return
	}

	inst, ok := f.models.GetOrStart(r.Context(), modelName)
	if !ok {
		httperr.Write(w, http.StatusServiceUnavailable, httperr.ServiceUnavailable,
			fmt.Sprintf("model %q is not available", modelName))
		return
	}

	f.forward(w, r, inst, endpoint, modelName)
}

// forward proxies one request to inst, streaming the response through
// when upstream signals SSE, buffering it otherwise. Metrics are always
// recorded, success or failure.
func (f *Forwarder) forward(w http.ResponseWriter, r *http.Request, inst *instance.Instance, endpoint, modelName string) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.queueMgr.Track(modelName, 0, time.Since(start), false)
		httperr.Write(w, http.StatusInternalServerError, httperr.InternalError, "failed to read request body")
		return
	}

	upstreamURL := inst.BaseURL() + endpoint
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		f.queueMgr.Track(modelName, 0, time.Since(start), false)
		httperr.Write(w, http.StatusInternalServerError, httperr.InternalError, "failed to build upstream request")
		return
	}
	copyHeaders(outReq.Header, r.Header)

	resp, err := f.client.Do(outReq)
	if err != nil {
		processing := time.Since(start)
		f.queueMgr.Track(modelName, 0, processing, false)
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutErr(err) {
			httperr.Write(w, http.StatusGatewayTimeout, httperr.Timeout, "upstream request timed out")
			return
		}
		httperr.Write(w, http.StatusBadGateway, httperr.BadGateway, "failed to reach upstream model process")
		return
	}
	defer resp.Body.Close()

	inst.Touch()

	wantStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		r.URL.Query().Get("stream") == "true"

	if wantStream {
		f.streamResponse(w, resp, modelName, start)
		return
	}
	f.bufferedResponse(w, resp, modelName, start)
}

func (f *Forwarder) streamResponse(w http.ResponseWriter, resp *http.Response, modelName string, start time.Time) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	success := resp.StatusCode >= 200 && resp.StatusCode < 400
	for scanner.Scan() {
		if _, err := fmt.Fprintf(w, "%s\n", scanner.Text()); err != nil {
			success = false
			break
		}
		if canFlush {
			flusher.Flush()
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(w, "data: {\"error\":\"stream interrupted\"}\n\n")
		if canFlush {
			flusher.Flush()
		}
		success = false
	}

	f.queueMgr.Track(modelName, 0, time.Since(start), success)
}

func (f *Forwarder) bufferedResponse(w http.ResponseWriter, resp *http.Response, modelName string, start time.Time) {
	raw, err := io.ReadAll(resp.Body)
	success := err == nil && resp.StatusCode >= 200 && resp.StatusCode < 400

	copyHeaders(w.Header(), resp.Header)
	if depth := f.queueMgr.QueueSize(modelName); depth > 0 {
		w.Header().Set("X-Queue-Position", fmt.Sprintf("%d", depth))
		w.Header().Set("X-Queue-Model-State", string(f.queueMgr.GetState(modelName)))
	}

	if err != nil {
		f.queueMgr.Track(modelName, 0, time.Since(start), false)
		httperr.Write(w, http.StatusInternalServerError, httperr.InternalError, "failed to read upstream response")
		return
	}

	if !json.Valid(raw) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": string(raw)})
		f.queueMgr.Track(modelName, 0, time.Since(start), success)
		return
	}

	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(raw)
	f.queueMgr.Track(modelName, 0, time.Since(start), success)
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(name)]; hop {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
