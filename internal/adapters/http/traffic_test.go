package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/catalog-assistant/internal/config"
)

func TestTrafficGateRateLimitsChatEndpointsOnly(t *testing.T) {
	handler := newTestHandler(config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, &chatFake{})

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if first.Code != http.StatusCreated {
		t.Fatalf("first request expected 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After of one second, got %q", second.Header().Get("Retry-After"))
	}

	health := httptest.NewRecorder()
	handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("healthz must bypass traffic control, got %d", health.Code)
	}
}

// blockingHandler holds every request until release is closed.
func blockingHandler() (http.Handler, chan struct{}, chan struct{}) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	return h, started, release
}

func TestTrafficGateRejectsWhenSaturated(t *testing.T) {
	base, started, release := blockingHandler()
	var mu sync.Mutex
	var rejected []string
	gate := newTrafficGate(config.Config{APIMaxInFlight: 1, APIBackpressureWait: 20 * time.Millisecond}, func(reason string) {
		mu.Lock()
		rejected = append(rejected, reason)
		mu.Unlock()
	})
	handler := gate.wrap(base)

	done := make(chan int, 1)
	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/sessions/s/messages", nil))
		done <- res.Code
	}()
	<-started

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/sessions/s/messages", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while saturated, got %d", res.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil || body["error"] == "" {
		t.Fatalf("expected JSON error body, got %v err=%v", body, err)
	}
	mu.Lock()
	if len(rejected) != 1 || rejected[0] != rejectSaturated {
		t.Fatalf("expected one saturated rejection, got %v", rejected)
	}
	mu.Unlock()

	close(release)
	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for first request")
	}
}

func TestTrafficGateWaitsForFreedSlot(t *testing.T) {
	base, started, release := blockingHandler()
	handler := newTrafficGate(config.Config{APIMaxInFlight: 1, APIBackpressureWait: time.Second}, nil).wrap(base)

	go handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	<-started

	done := make(chan int, 1)
	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
		done <- res.Code
	}()
	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("queued request expected 204, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued request never admitted")
	}
}

func TestTrafficGateDisabledPassesThrough(t *testing.T) {
	gate := newTrafficGate(config.Config{}, nil)
	if gate.limiter != nil || gate.slots != nil {
		t.Fatalf("expected disabled gate, got %+v", gate)
	}
	res := httptest.NewRecorder()
	gate.wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/sessions/s/history", nil))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected pass-through, got %d", res.Code)
	}
}
