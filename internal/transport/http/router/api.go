package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"user-account-service/internal/core/server"
	"user-account-service/internal/transport/http/handler"
	mdw "user-account-service/internal/transport/http/middleware"
)

// Limits are the per-engine request guards. Zero fields take the defaults.
type Limits struct {
	RPS            float64
	Burst          int
	MaxConcurrent  int64
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.RPS <= 0 {
		l.RPS = 200
	}
	if l.Burst <= 0 {
		l.Burst = 400
	}
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = 300
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = 1 << 20
	}
	if l.RequestTimeout <= 0 {
		l.RequestTimeout = 10 * time.Second
	}
	return l
}

type APIOptions struct {
	Mode         string
	AllowOrigins []string
	Limits       Limits
}

// NewAPIEngine serves the account routes under /users.
func NewAPIEngine(l *zap.Logger, users *handler.UserHandler, o APIOptions) *gin.Engine {
	lim := o.Limits.withDefaults()
	r := server.NewRouter(l, server.Options{Mode: o.Mode, AllowOrigins: o.AllowOrigins})

	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(rate.Limit(lim.RPS), lim.Burst),
		// slot waits are bounded by the request deadline
		mdw.Timeout(lim.RequestTimeout),
		mdw.ConcurrencyLimit(lim.MaxConcurrent),
		mdw.MaxBodyBytes(lim.MaxBodyBytes),
		mdw.Metrics(),
		mdw.AccessLog(l),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })

	users.Mount(r.Group("/users"))
	return r
}
