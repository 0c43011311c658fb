package response

import (
	"net/http"

	"user-account-service/internal/domain"
)

// Transport-level messages not produced by the service.
const (
	MsgInvalidBody   = "Invalid request body"
	MsgBodyTooLarge  = "Request body too large"
	MsgTooMany       = "Too many requests"
	MsgBusy          = "Server busy"
	MsgTimeout       = "Request timed out"
	MsgInternalError = "Internal server error"
)

// StatusOf maps an error kind to its HTTP status. Only the kind is
// consulted, never the message.
func StatusOf(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
