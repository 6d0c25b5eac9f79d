package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

func TestClassifyHTTP(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"canceled", fmt.Errorf("query: %w", context.Canceled), Ignored},
		{"open circuit", gobreaker.ErrOpenState, Transient},
		{"bad gateway", &StatusError{Service: "ollama", Operation: "generate", Code: http.StatusBadGateway}, Transient},
		{"timeout status", &StatusError{Code: http.StatusRequestTimeout}, Transient},
		{"not found", &StatusError{Code: http.StatusNotFound}, Ignored},
		{"decode", errors.New("decode response: unexpected EOF"), Permanent},
	}
	for _, tc := range cases {
		if got := ClassifyHTTP(tc.err); got != tc.want {
			t.Fatalf("%s: got %+v want %+v", tc.name, got, tc.want)
		}
	}
}

func TestReadStatusErrorKeepsBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Body:       io.NopCloser(strings.NewReader("  model is loading \n")),
	}
	err := ReadStatusError("ollama", "generate", resp)
	if err.Error() != "ollama generate: http 503: model is loading" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !HasStatus(fmt.Errorf("wrapped: %w", err), http.StatusServiceUnavailable) {
		t.Fatalf("expected status to survive wrapping")
	}
}

func TestMarkTemporary(t *testing.T) {
	transient := &StatusError{Code: http.StatusBadGateway}
	err := MarkTemporary("qdrant.query", transient, ClassifyHTTP)
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.As(err, new(*StatusError)) {
		t.Fatalf("expected temporary wrap, got %v", err)
	}
	if again := MarkTemporary("qdrant.query", err, ClassifyHTTP); again != err {
		t.Fatalf("expected already temporary error unchanged")
	}

	badRequest := &StatusError{Code: http.StatusBadRequest}
	if err := MarkTemporary("qdrant.query", badRequest, ClassifyHTTP); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("request mistakes are not temporary: %v", err)
	}
	if MarkTemporary("op", nil, ClassifyHTTP) != nil {
		t.Fatalf("nil must stay nil")
	}
}
