package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/catalog-assistant/internal/config"
	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
	"github.com/kirillkom/catalog-assistant/internal/core/usecase"
	"github.com/kirillkom/catalog-assistant/internal/observability/metrics"
)

const maxMessageBytes = 16 << 10

type Router struct {
	cfg     config.Config
	chat    ports.ChatService
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, chat ports.ChatService, m *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:     cfg,
		chat:    chat,
		metrics: m,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/sessions", rt.createSession)
	api.HandleFunc("DELETE /v1/sessions/{session_id}", rt.endSession)
	api.HandleFunc("GET /v1/sessions/{session_id}/history", rt.history)
	api.HandleFunc("POST /v1/sessions/{session_id}/messages", rt.postMessage)

	var onReject func(string)
	if rt.metrics != nil {
		onReject = rt.metrics.RecordRejected
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", newTrafficGate(rt.cfg, onReject).wrap(api))

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := rt.chat.CreateSession(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": id,
		"greeting":   usecase.GreetingMessage,
	})
}

func (rt *Router) endSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.chat.EndSession(r.Context(), r.PathValue("session_id")); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request) {
	messages, err := rt.chat.History(r.Context(), r.PathValue("session_id"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type postMessageRequest struct {
	Message string `json:"message"`
	Stream  *bool  `json:"stream,omitempty"`
}

type messageResponse struct {
	TurnID     string            `json:"turn_id"`
	Strategy   string            `json:"strategy"`
	Answer     string            `json:"answer"`
	Sources    []domain.Citation `json:"sources"`
	NoEvidence bool              `json:"no_evidence"`
}

func (rt *Router) postMessage(w http.ResponseWriter, r *http.Request) {
	received := time.Now()
	var req postMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	stream, err := rt.chat.BeginTurn(r.Context(), r.PathValue("session_id"), req.Message)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	if req.Stream != nil && !*req.Stream {
		rt.respondCollected(w, r, stream)
		return
	}
	rt.respondSSE(w, r, stream, received)
}

// respondCollected buffers the whole answer for clients that cannot read SSE.
func (rt *Router) respondCollected(w http.ResponseWriter, r *http.Request, stream ports.TurnStream) {
	var b strings.Builder
	for token := range stream.Tokens() {
		b.WriteString(token)
	}
	if err := stream.Wait(); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	turn := stream.Turn()
	writeJSON(w, http.StatusOK, messageResponse{
		TurnID:     turn.ID,
		Strategy:   turn.Decision.Strategy,
		Answer:     b.String(),
		Sources:    nonNilCitations(turn.Citations),
		NoEvidence: turn.NoEvidence,
	})
}

func (rt *Router) respondSSE(w http.ResponseWriter, r *http.Request, stream ports.TurnStream, received time.Time) {
	sse, err := newSSEWriter(w)
	if err != nil {
		// Drain so the producer can finish, then report.
		for range stream.Tokens() {
		}
		_ = stream.Wait()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rt.metrics != nil {
		rt.metrics.StreamOpened()
		defer rt.metrics.StreamClosed()
	}

	writeFailed := false
	first := true
	for token := range stream.Tokens() {
		if writeFailed {
			continue
		}
		if first && rt.metrics != nil {
			rt.metrics.ObserveFirstToken(time.Since(received))
		}
		first = false
		if err := sse.event(streamEvent{Type: "token", Content: token}); err != nil {
			writeFailed = true
			slog.Warn("sse_write_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
	}
	if writeFailed {
		_ = stream.Wait()
		return
	}

	if err := stream.Wait(); err != nil {
		slog.Warn("turn_stream_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		_ = sse.event(streamEvent{Type: "error", Error: publicErrorMessage(err)})
		_ = sse.done()
		return
	}
	turn := stream.Turn()
	_ = sse.event(streamEvent{
		Type:       "sources",
		TurnID:     turn.ID,
		Strategy:   turn.Decision.Strategy,
		Sources:    nonNilCitations(turn.Citations),
		NoEvidence: turn.NoEvidence,
	})
	_ = sse.done()
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, r.Context().Err()) {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, status, publicErrorMessage(err))
}

func nonNilCitations(in []domain.Citation) []domain.Citation {
	if in == nil {
		return []domain.Citation{}
	}
	return in
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
