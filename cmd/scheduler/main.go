package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/config"
	applog "trenddrop/internal/infra/log"
	"trenddrop/internal/infra/metrics"
	"trenddrop/internal/infra/queue"
	"trenddrop/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	jobQueue := buildQueue(cfg, logger)

	svc, err := schedule.NewService(jobQueue, domain.ClockFunc(time.Now), schedule.Config{
		TZ:            cfg.TZ,
		DropTimes:     cfg.Schedule.DropTimes,
		ReportWeekday: cfg.Schedule.ReportWeekday,
		ReportTime:    cfg.Schedule.ReportTime,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: некорректное расписание")
	}

	logger.Info().
		Str("drop_times", cfg.Schedule.DropTimes).
		Str("report", cfg.Schedule.ReportWeekday+" "+cfg.Schedule.ReportTime).
		Msg("scheduler: планировщик запущен")

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("scheduler: цикл завершился с ошибкой")
	}
}

func buildQueue(cfg config.AppConfig, logger zerolog.Logger) domain.JobQueue {
	if cfg.Queue.Driver == "amqp" {
		q, err := queue.NewRabbitJobQueue(cfg.Queue.AMQP, cfg.Queue.Key)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: очередь RabbitMQ недоступна")
		}
		return q
	}
	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("scheduler: не указан адрес Redis (REDIS_ADDR)")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return queue.NewRedisJobQueue(client, cfg.Queue.Key)
}
