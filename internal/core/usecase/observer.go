package usecase

import (
	"time"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

// PipelineObserver receives per-turn pipeline signals. Implementations must be
// safe for concurrent use.
type PipelineObserver interface {
	ObserveStage(stage domain.TurnStage, duration time.Duration)
	RecordCondenseFallback()
	RecordRoutingError(kind string)
	RecordRetrieval(collection string, lexical, vector, merged int)
	RecordRerankBatch(status string)
	RecordTurn(strategy string, status domain.TurnStatus, noEvidence bool, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(domain.TurnStage, time.Duration) {}
func (noopObserver) RecordCondenseFallback() {}
func (noopObserver) RecordRoutingError(string) {}
func (noopObserver) RecordRetrieval(string, int, int, int) {}
func (noopObserver) RecordRerankBatch(string) {}
func (noopObserver) RecordTurn(string, domain.TurnStatus, bool, time.Duration) {}

func observerOrNoop(o PipelineObserver) PipelineObserver {
	if o == nil {
		return noopObserver{}
	}
	return o
}
