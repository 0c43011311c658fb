package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"user-account-service/internal/core/cache"
	"user-account-service/internal/core/config"
	"user-account-service/internal/core/database"
	"user-account-service/internal/core/logger"
	"user-account-service/internal/core/server"
	"user-account-service/internal/repo"
	"user-account-service/internal/service"
	"user-account-service/internal/transport/http/handler"
	"user-account-service/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}

	log, cleanup := logger.NewWithRotate(cfg.Log.Level, cfg.Log.JSON, logger.FileRotate{
		Enable:     cfg.Log.File.Enable,
		Filename:   cfg.Log.File.Filename,
		MaxSizeMB:  cfg.Log.File.MaxSizeMB,
		MaxBackups: cfg.Log.File.MaxBackups,
		MaxAgeDays: cfg.Log.File.MaxAgeDays,
		Compress:   cfg.Log.File.Compress,
	})
	defer cleanup()
	restoreStdLog := logger.RedirectStdLog(log, zapcore.InfoLevel)
	defer restoreStdLog()

	db := mustOpenDB(cfg, log)
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("db close", zap.Error(err))
		}
	}()
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))

	// schema must exist before any listener accepts traffic
	if cfg.DB.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.EnsureUserSchema(ctx, db)
		cancel()
		if err != nil {
			log.Fatal("schema init failed", zap.Error(err))
		}
		log.Info("schema ready")
	}

	opts := []service.Option{
		service.WithLogger(log.Named("users")),
		service.WithBcryptCost(cfg.Auth.BcryptCost),
	}
	if rc := openCache(cfg, log); rc != nil {
		defer rc.Close()
		opts = append(opts, service.WithCache(rc, time.Duration(cfg.Redis.TTLSec)*time.Second))
	}
	svc := service.NewUserService(repo.NewUserRepo(db), opts...)

	mode := ginMode(cfg.App.Env)
	h := cfg.App.HTTP
	api := router.NewAPIEngine(log, handler.NewUserHandler(svc, log), router.APIOptions{
		Mode:         mode,
		AllowOrigins: cfg.CORS.AllowOrigins,
		Limits: router.Limits{
			RPS:            h.RateLimitRPS,
			Burst:          h.RateLimitBurst,
			MaxConcurrent:  h.MaxConcurrent,
			MaxBodyBytes:   h.MaxBodyBytes,
			RequestTimeout: time.Duration(h.RequestTimeoutSec) * time.Second,
		},
	})

	servers := []*http.Server{build(server.Addr(h.Host, h.Port), api, h)}
	if cfg.App.Admin.Port > 0 {
		admin := router.NewAdminEngine(log, db, mode)
		servers = append(servers, build(server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port), admin, h))
	}

	for _, srv := range servers {
		go func(srv *http.Server) {
			if err := server.StartHTTP(srv, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("http start failed", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}(srv)
	}
	log.Info("user account service started", zap.String("api", servers[0].Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	log.Info("user account service stopped gracefully")
}

func build(addr string, h http.Handler, c config.HTTP) *http.Server {
	return server.BuildServer(addr, h,
		time.Duration(c.ReadTimeoutSec)*time.Second,
		time.Duration(c.WriteTimeoutSec)*time.Second,
		time.Duration(c.IdleTimeoutSec)*time.Second,
	)
}

func ginMode(env string) string {
	switch env {
	case "prod", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

func mustOpenDB(cfg *config.Config, l *zap.Logger) *gorm.DB {
	gormLog, err := logger.ToStdLogger(l.Named("gorm"), zapcore.InfoLevel)
	if err != nil {
		l.Fatal("gorm logger", zap.Error(err))
	}
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Log:                gormLog,
	})
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	return db
}

// openCache returns nil when redis is disabled or unreachable; the service
// then reads straight from the database.
func openCache(cfg *config.Config, l *zap.Logger) *cache.Cache {
	if !cfg.Redis.Enable {
		return nil
	}
	rc := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		l.Warn("redis unreachable, running without cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = rc.Close()
		return nil
	}
	l.Info("redis cache enabled", zap.String("addr", cfg.Redis.Addr))
	return rc
}
