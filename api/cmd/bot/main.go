package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"step-tutor/api/internal/bootstrap"
	"step-tutor/api/internal/config"
	"step-tutor/api/internal/httpserver"
	"step-tutor/api/internal/logging"
	"step-tutor/api/internal/telegram"
)

const serviceName = "step-tutor-bot"

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
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("bootstrap.failed")
	}
	defer deps.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.WithError(err).Fatal("telegram.init.failed")
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:   bot,
		Tutor: deps.Tutor,
		Users: deps.Users,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	deps.Health(serviceName, version).RegisterRoutes(engine)

	addr := "0.0.0.0:" + cfg.Port
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(ctx, addr, engine, bot, r, webhookURL)
		return
	}
	startPollingMode(ctx, addr, engine, bot, r)
}

func startWebhookMode(ctx context.Context, addr string, engine *gin.Engine, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string) {
	path := telegram.WebhookPath(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		log.WithError(err).Fatal("telegram.webhook.invalid")
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		log.WithError(err).Fatal("telegram.webhook.register_failed")
	}

	engine.POST(path, func(c *gin.Context) {
		upd, err := bot.HandleUpdate(c.Request)
		if err != nil {
			log.WithError(err).Warn("telegram.webhook.bad_update")
			c.Status(http.StatusBadRequest)
			return
		}
		// Answer Telegram right away; the step call can take a while.
		go r.HandleUpdate(context.WithoutCancel(ctx), *upd)
		c.Status(http.StatusOK)
	})

	log.WithField("path", path).Info("telegram.webhook.listening")
	if err := httpserver.Serve(ctx, addr, engine); err != nil {
		log.WithError(err).Error("http.serve.failed")
	}
}

func startPollingMode(ctx context.Context, addr string, engine *gin.Engine, bot *tgbotapi.BotAPI, r *telegram.Router) {
	// The health server is optional in polling mode.
	go func() {
		if err := httpserver.Serve(ctx, addr, engine); err != nil {
			log.WithError(err).Error("http.serve.failed")
		}
	}()

	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.WithError(err).Warn("telegram.webhook.delete_failed")
	}

	log.Info("telegram.polling.started")
	telegram.NewPoller(bot).Run(ctx, func(upd tgbotapi.Update) {
		r.HandleUpdate(ctx, upd)
	})
}
