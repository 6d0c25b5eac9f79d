package httpadapter

import (
	"net/http"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrSessionBusy):
		return http.StatusConflict
	case domain.IsRoutingFailure(err):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrSynthesisFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage keeps adapter details out of client responses.
func publicErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return err.Error()
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return domain.ErrSessionNotFound.Error()
	case domain.IsKind(err, domain.ErrSessionBusy):
		return "a turn is already running for this session"
	case domain.IsKind(err, domain.ErrRoutingAmbiguous):
		return "could not pick a single strategy for the question"
	case domain.IsKind(err, domain.ErrRoutingEmpty):
		return "no strategy matched the question"
	case domain.IsKind(err, domain.ErrTemporary):
		return "a dependency is temporarily unavailable"
	case domain.IsKind(err, domain.ErrSynthesisFailed):
		return "answer generation failed"
	default:
		return "internal error"
	}
}
