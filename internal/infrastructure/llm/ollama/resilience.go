package ollama

import (
	"errors"

	"github.com/kirillkom/catalog-assistant/internal/infrastructure/resilience"
)

// classifyOllamaError treats a failing token consumer as final and harmless:
// the consumer chose to stop, Ollama did nothing wrong.
func classifyOllamaError(err error) resilience.ErrorClassification {
	var sinkErr *sinkError
	if errors.As(err, &sinkErr) {
		return resilience.Ignored
	}
	return resilience.ClassifyHTTP(err)
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.MarkTemporary(operation, err, classifyOllamaError)
}
