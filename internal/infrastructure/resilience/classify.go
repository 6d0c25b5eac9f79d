package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

// ErrorClassification tells the executor whether to repeat a failed call and
// whether the failure counts against the breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures are returned at once but still count.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored failures are the caller's doing and leave the breaker alone.
	Ignored = ErrorClassification{}
)

const maxStatusBody = 2048

// StatusError is a non-2xx answer from an HTTP dependency.
type StatusError struct {
	Service   string
	Operation string
	Code      int
	Body      string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Service, e.Operation, e.Code)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Service, e.Operation, e.Code, e.Body)
}

// ReadStatusError drains a bounded prefix of resp.Body into a StatusError.
func ReadStatusError(service, operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	return &StatusError{
		Service:   service,
		Operation: operation,
		Code:      resp.StatusCode,
		Body:      strings.TrimSpace(string(body)),
	}
}

// HasStatus reports whether err carries a StatusError with the given code.
func HasStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}

// ClassifyCommon settles the outcomes every adapter treats alike. ok is false
// when the adapter has to decide on its own.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Ignored, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, true
	}
	return ErrorClassification{}, false
}

// ClassifyHTTP is the classifier for JSON-over-HTTP dependencies. Overload and
// gateway statuses are transient, other statuses are request mistakes.
func ClassifyHTTP(err error) ErrorClassification {
	if class, ok := ClassifyCommon(err); ok {
		return class
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return Transient
		}
		return Ignored
	}
	return Permanent
}

// MarkTemporary tags transient failures with domain.ErrTemporary so callers
// can answer "try again later".
func MarkTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func classifyUnknown(error) ErrorClassification {
	return Permanent
}
