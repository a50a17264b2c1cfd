package httpadapter

import (
	"net/http"

	"github.com/heliowatt/permit-intake/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrProjectNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrGuidanceNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrSourceFormat):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrSourceSchema):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
