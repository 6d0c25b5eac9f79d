package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/catalog-assistant/internal/config"
	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

func postMessage(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/messages", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestPostMessageMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", domain.WrapError(domain.ErrInvalidInput, "begin turn", errors.New("message is empty")), http.StatusBadRequest},
		{"not found", domain.WrapError(domain.ErrSessionNotFound, "get", errors.New("id=x")), http.StatusNotFound},
		{"busy", domain.WrapError(domain.ErrSessionBusy, "begin turn", errors.New("session=x")), http.StatusConflict},
		{"ambiguous", domain.WrapError(domain.ErrRoutingAmbiguous, "route", errors.New("2 selections")), http.StatusUnprocessableEntity},
		{"empty", domain.WrapError(domain.ErrRoutingEmpty, "route", errors.New("no selections")), http.StatusUnprocessableEntity},
		{"temporary", domain.WrapError(domain.ErrTemporary, "ollama.generate", errors.New("503")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, &chatFake{beginErr: tc.err})
			res := postMessage(t, handler, `{"message":"ciao"}`)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil || body["error"] == "" {
				t.Fatalf("expected error body, got %q (%v)", res.Body.String(), err)
			}
		})
	}
}

func TestPostMessageRejectsBadPayload(t *testing.T) {
	chat := &chatFake{}
	handler := newTestHandler(config.Config{}, chat)
	for _, body := range []string{`not json`, `{"message":"   "}`} {
		if res := postMessage(t, handler, body); res.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, res.Code)
		}
	}
	if chat.lastMessage != "" {
		t.Fatalf("invalid payload must not start a turn")
	}
}

func TestEndSessionReturns404ForUnknownSession(t *testing.T) {
	handler := newTestHandler(config.Config{}, &chatFake{
		endErr: domain.WrapError(domain.ErrSessionNotFound, "end", errors.New("id=missing")),
	})

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestInternalErrorsDoNotLeakDetails(t *testing.T) {
	handler := newTestHandler(config.Config{}, &chatFake{
		beginErr: errors.New("dial tcp 10.0.0.7:6333: connection refused"),
	})
	res := postMessage(t, handler, `{"message":"ciao"}`)
	if bytes.Contains(res.Body.Bytes(), []byte("10.0.0.7")) {
		t.Fatalf("internal address leaked: %s", res.Body.String())
	}
}
