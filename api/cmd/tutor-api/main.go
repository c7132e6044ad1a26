package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"step-tutor/api/internal/bootstrap"
	"step-tutor/api/internal/config"
	"step-tutor/api/internal/handle"
	"step-tutor/api/internal/httpserver"
	"step-tutor/api/internal/logging"
)

const serviceName = "step-tutor"

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config.invalid")
	}
	logging.Setup(cfg.Env, cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("bootstrap.failed")
	}
	defer deps.Close()

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Handle:         handle.New(deps.Tutor, deps.Users),
		Health:         deps.Health(serviceName, version),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	if err := httpserver.Serve(ctx, "0.0.0.0:"+cfg.Port, router); err != nil {
		log.WithError(err).Error("http.serve.failed")
	}
	log.Info("server exited")
}
