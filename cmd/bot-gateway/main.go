package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trenddrop/internal/adapters/bot"
	"trenddrop/internal/adapters/repo"
	"trenddrop/internal/domain"
	"trenddrop/internal/infra/config"
	"trenddrop/internal/infra/db"
	httpinfra "trenddrop/internal/infra/http"
	applog "trenddrop/internal/infra/log"
	"trenddrop/internal/infra/metrics"
	"trenddrop/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	jobQueue := buildQueue(cfg, logger)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot-gateway: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}
	if cfg.Telegram.WebhookURL != "" {
		webhook, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: некорректный адрес вебхука")
		}
		if _, err := botAPI.Request(webhook); err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: вебхук не зарегистрирован")
		}
	}

	handler := bot.NewHandler(botAPI, logger, repoAdapter, repoAdapter, repoAdapter, jobQueue, cfg.Telegram.AdminChat)

	srv := httpinfra.NewServer(logger.With().Str("component", "bot-gateway").Logger())
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		logger.Info().Msg("bot-gateway: гейтвей запущен")
		if err := srv.Start(":8080"); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildQueue(cfg config.AppConfig, logger zerolog.Logger) domain.JobQueue {
	if cfg.Queue.Driver == "amqp" {
		q, err := queue.NewRabbitJobQueue(cfg.Queue.AMQP, cfg.Queue.Key)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: очередь RabbitMQ недоступна")
		}
		return q
	}
	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("bot-gateway: не указан адрес Redis (REDIS_ADDR)")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return queue.NewRedisJobQueue(client, cfg.Queue.Key)
}
