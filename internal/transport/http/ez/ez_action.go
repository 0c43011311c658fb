// Package ez registers typed JSON actions on a gin group: bind the input,
// call the handler, write the output or map the error to a status.
package ez

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mdw "user-account-service/internal/transport/http/middleware"
	resp "user-account-service/internal/transport/http/response"
)

type Binder string

const (
	BindJSON Binder = "json" // decode the body into I
	BindNone Binder = "none" // handler reads c.Param itself
)

// Action describes one endpoint. I is the request body, O the success body.
type Action[I any, O any] struct {
	Method  string
	Path    string
	Binder  Binder
	Status  int // success status, 200 when zero
	Handler func(c *gin.Context, in *I) (O, error)
}

type EZ struct {
	g   *gin.RouterGroup
	log *zap.Logger
}

func New(g *gin.RouterGroup, l *zap.Logger) EZ {
	if l == nil {
		l = zap.NewNop()
	}
	return EZ{g: g, log: l}
}

func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	status := a.Status
	if status == 0 {
		status = http.StatusOK
	}

	h := func(c *gin.Context) {
		var in I
		if a.Binder == BindJSON {
			if err := c.ShouldBindJSON(&in); err != nil {
				e.bindFailed(c, err)
				return
			}
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			e.fail(c, err)
			return
		}
		c.JSON(status, out)
	}

	switch a.Method {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPost:
		e.g.POST(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default:
		e.g.Handle(a.Method, a.Path, h)
	}
}

func (e EZ) bindFailed(c *gin.Context, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp.Error(resp.MsgBodyTooLarge))
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp.Error(resp.MsgInvalidBody))
}

func (e EZ) fail(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		e.log.Warn("request deadline exceeded",
			zap.String("rid", c.GetString(mdw.KeyRequestID)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, resp.Error(resp.MsgTimeout))
		return
	}

	code, body := resp.FromError(err)
	if code >= http.StatusInternalServerError {
		e.log.Error("request failed",
			zap.String("rid", c.GetString(mdw.KeyRequestID)),
			zap.String("path", c.FullPath()),
			zap.Int("status", code),
			zap.Error(unwrapCause(err)))
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(code, body)
}

// unwrapCause returns the innermost error so logs show the store fault, not
// the client message.
func unwrapCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
