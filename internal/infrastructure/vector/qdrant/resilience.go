package qdrant

import (
	"net/http"

	"github.com/kirillkom/catalog-assistant/internal/infrastructure/resilience"
)

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.MarkTemporary(operation, err, resilience.ClassifyHTTP)
}

// IsNotFound reports a 404 from Qdrant, typically an unknown collection.
func IsNotFound(err error) bool {
	return resilience.HasStatus(err, http.StatusNotFound)
}
