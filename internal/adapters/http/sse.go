package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

type streamEvent struct {
	Type       string            `json:"type"`
	Content    string            `json:"content,omitempty"`
	TurnID     string            `json:"turn_id,omitempty"`
	Strategy   string            `json:"strategy,omitempty"`
	Sources    []domain.Citation `json:"sources,omitempty"`
	NoEvidence bool              `json:"no_evidence,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter commits the response headers; status is 200 from here on.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming is not supported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) event(ev streamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) done() error {
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
