package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/app"
	"github.com/Spok95/achievement-service/internal/bootstrap"
	"github.com/Spok95/achievement-service/internal/bot/handlers"
	"github.com/Spok95/achievement-service/internal/config"
	"github.com/Spok95/achievement-service/internal/logging"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/observability"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.Init(cfg.LogLevel, cfg.Env, "achievement-bot")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, os.Getenv("RELEASE"))
	if err != nil {
		lg.Base.Warn("sentry init failed", zap.Error(err))
	}
	defer flush()

	if cfg.BotToken == "" {
		lg.Base.Fatal("BOT_TOKEN is empty")
	}
	if len(cfg.BotApprovers) == 0 {
		lg.Base.Warn("BOT_APPROVERS is empty, nobody can use the bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, lg.Base)
	if err != nil {
		lg.Base.Fatal("bootstrap", zap.Error(err))
	}
	defer deps.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		lg.Base.Fatal("telegram bot", zap.Error(err))
	}
	bot.Debug = cfg.Env != "prod"
	lg.Base.Info("bot started", zap.String("username", bot.Self.UserName))

	approvers := make(map[int64]models.Actor, len(cfg.BotApprovers))
	for _, a := range cfg.BotApprovers {
		approvers[a.TelegramID] = models.Actor{ID: a.UserID, Name: a.Name, Roles: []models.Role{models.RoleBK}}
	}
	h := handlers.New(bot, deps.Service, handlers.Options{
		Approvers: approvers,
		Location:  cfg.Location,
		Logger:    lg.Base,
	})
	d := app.NewDispatcher(h, lg.Base)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			lg.Base.Info("shutting down")
			bot.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			go d.HandleUpdate(ctx, upd)
		}
	}
}
