package response

import (
	"errors"

	"user-account-service/internal/domain"
)

// ErrorBody is the shape of every failure response.
type ErrorBody struct {
	Error string `json:"error"`
}

// MessageBody is the shape of writes that return nothing else.
type MessageBody struct {
	Message string `json:"message"`
}

func Error(msg string) ErrorBody { return ErrorBody{Error: msg} }

func Message(msg string) MessageBody { return MessageBody{Message: msg} }

// FromError picks status and body for err. Unclassified errors get a
// generic 500 so internals never reach the client.
func FromError(err error) (int, ErrorBody) {
	var de *domain.Error
	if !errors.As(err, &de) {
		return StatusOf(domain.KindInternal), Error(MsgInternalError)
	}
	msg := de.Msg
	if msg == "" {
		msg = MsgInternalError
	}
	return StatusOf(de.Kind), Error(msg)
}
