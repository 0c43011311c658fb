package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"user-account-service/internal/core/server"
	mdw "user-account-service/internal/transport/http/middleware"
	resp "user-account-service/internal/transport/http/response"
)

const dbPingTimeout = 2 * time.Second

// NewAdminEngine is the operator listener: a database-backed health check
// and the Prometheus scrape endpoint.
func NewAdminEngine(l *zap.Logger, db *gorm.DB, mode string) *gin.Engine {
	r := server.NewRouter(l, server.Options{Mode: mode})
	r.Use(mdw.RequestID(), mdw.AccessLog(l))

	r.GET("/health", func(c *gin.Context) {
		if err := pingDB(c.Request.Context(), db); err != nil {
			l.Warn("health: database unreachable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, resp.Error("Database unavailable"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": 1})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
