package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session busy")
	ErrTemporary       = errors.New("temporary failure")

	// Turn-fatal routing outcomes.
	ErrRoutingAmbiguous = errors.New("routing ambiguous")
	ErrRoutingEmpty     = errors.New("routing empty")

	ErrSynthesisFailed = errors.New("synthesis failed")

	// Recovered inside the pipeline, surfaced only through logs and metrics.
	ErrCondensationFailed = errors.New("condensation failed")
	ErrRetrievalAdapter   = errors.New("retrieval adapter failure")
	ErrRerankParse        = errors.New("rerank parse failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsRoutingFailure reports whether err aborts a turn at the routing stage.
func IsRoutingFailure(err error) bool {
	return errors.Is(err, ErrRoutingAmbiguous) || errors.Is(err, ErrRoutingEmpty)
}
