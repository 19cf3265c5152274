package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trenddrop/internal/adapters/copywriter"
	"trenddrop/internal/adapters/epn"
	"trenddrop/internal/adapters/marketsource"
	"trenddrop/internal/adapters/mtproto"
	"trenddrop/internal/adapters/repo"
	"trenddrop/internal/adapters/report"
	"trenddrop/internal/adapters/storage"
	"trenddrop/internal/adapters/storefront"
	"trenddrop/internal/adapters/telegram"
	"trenddrop/internal/adapters/trendsfeed"
	"trenddrop/internal/domain"
	"trenddrop/internal/infra/cache"
	"trenddrop/internal/infra/config"
	"trenddrop/internal/infra/db"
	applog "trenddrop/internal/infra/log"
	"trenddrop/internal/infra/metrics"
	"trenddrop/internal/infra/openai"
	"trenddrop/internal/infra/queue"
	"trenddrop/internal/usecase/drop"
	"trenddrop/internal/usecase/reports"
	"trenddrop/internal/usecase/scrape"
	"trenddrop/internal/usecase/trends"
)

const (
	maxJobAttempts    = 5
	statsPullInterval = time.Hour
	statsPullLimit    = 50
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}
	jobQueue := buildQueue(cfg, redisClient, logger)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("collector: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: не удалось создать бота")
	}
	publisher := telegram.NewPublisher(botAPI, telegram.ChatRouting{
		PublicChat: cfg.Telegram.PublicChat,
		PaidChat:   cfg.Telegram.PaidChat,
		AdminChat:  cfg.Telegram.AdminChat,
		DMChat:     cfg.Telegram.DMChat,
	}, logger)

	var writer domain.Copywriter = copywriter.NewSimpleCopywriter()
	if cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		writer = copywriter.NewOpenAICopywriter(client, cfg.OpenAI.Model, logger)
	}

	var cacheAdapter domain.Cache
	if redisClient != nil {
		cacheAdapter = cache.NewRedis(redisClient)
	}

	feed := storefront.NewFeedWriter(cfg.Storefront.DataDir, cfg.Storefront.ClickRedirectBase)
	affiliate := epn.NewWrapper(cfg.Ebay.CampaignID)

	dropSvc := drop.NewService(repoAdapter, repoAdapter, repoAdapter, publisher, writer, affiliate, feed, cacheAdapter,
		domain.ClockFunc(time.Now), drop.Config{
			DedupeWindow:      time.Duration(cfg.Publish.DedupeHours) * time.Hour,
			MaxPerKeyword:     cfg.Publish.MaxPerKeyword,
			MinUniqueKeywords: cfg.Publish.MinUniqueKeywords,
			MaxPerSeller:      cfg.Publish.MaxPerSeller,
			CTAEveryN:         cfg.Publish.CTAEvery,
			CTACooldown:       time.Duration(cfg.Publish.CTACooldownMinutes) * time.Minute,
			PinCTA:            cfg.Publish.PinCTA,
			PublishLimit:      cfg.Publish.Limit,
			GumroadCTAURL:     cfg.Publish.GumroadCTAURL,
		}, logger)

	trendsSvc := trends.NewService(trendsfeed.NewRSSFeed(cfg.Trends.FeedGeo, logger), cfg.Trends.SeedFile, logger)
	sources := buildSources(cfg, logger)
	scrapeSvc := scrape.NewService(trendsSvc, sources, repoAdapter, affiliate, dropSvc,
		domain.ClockFunc(time.Now), scrape.Config{
			TopicsLimit:      cfg.Trends.TopicsLimit,
			VariantsPerTopic: cfg.Trends.VariantsPerTopic,
			PerPage:          cfg.Trends.PerPage,
			Picks:            cfg.Trends.Picks,
			SleepSecs:        cfg.Trends.SleepSecs,
			SleepJitterSecs:  cfg.Trends.SleepJitterSecs,
		}, logger)

	uploader := storage.NewUploader(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, cfg.Storage.Bucket, logger)
	reportsSvc := reports.NewService(repoAdapter, repoAdapter, report.NewPDFWriter(""), uploader,
		domain.ClockFunc(time.Now), reports.Config{
			OutDir:   cfg.Reports.OutDir,
			LockFile: cfg.Reports.LockFile,
			TopN:     cfg.Reports.TopN,
			MaxPull:  cfg.Reports.MaxPull,
		}, logger)

	startStatsLoop(ctx, cfg, repoAdapter, logger)

	logger.Info().Msg("collector: воркер запущен")
	runWorker(ctx, jobQueue, repoAdapter, scrapeSvc, reportsSvc, logger)
}

func buildQueue(cfg config.AppConfig, redisClient *redis.Client, logger zerolog.Logger) domain.JobQueue {
	if cfg.Queue.Driver == "amqp" {
		q, err := queue.NewRabbitJobQueue(cfg.Queue.AMQP, cfg.Queue.Key)
		if err != nil {
			logger.Fatal().Err(err).Msg("collector: очередь RabbitMQ недоступна")
		}
		return q
	}
	if redisClient == nil {
		logger.Fatal().Msg("collector: не указан адрес Redis (REDIS_ADDR)")
	}
	return queue.NewRedisJobQueue(redisClient, cfg.Queue.Key)
}

func buildSources(cfg config.AppConfig, logger zerolog.Logger) []domain.MarketSource {
	sources := []domain.MarketSource{
		marketsource.NewAmazonSource(logger),
		marketsource.NewAliexpressSource(logger),
	}
	if cfg.Ebay.ClientID != "" && cfg.Ebay.ClientSecret != "" {
		sources = append([]domain.MarketSource{
			marketsource.NewEbaySource(cfg.Ebay.ClientID, cfg.Ebay.ClientSecret, cfg.Ebay.BaseURL, logger),
		}, sources...)
	}
	return sources
}

// startStatsLoop периодически читает просмотры постов канала через MTProto.
// Без настроенного API или алиаса канала сбор не запускается.
func startStatsLoop(ctx context.Context, cfg config.AppConfig, repoAdapter *repo.Postgres, logger zerolog.Logger) {
	if cfg.Telegram.APIID == 0 || cfg.Telegram.APIHash == "" || cfg.Telegram.StatsAlias == "" {
		logger.Info().Msg("collector: сбор просмотров выключен")
		return
	}
	sessionStorage := mtproto.NewRepoSessionStorage(repoAdapter, cfg.Telegram.SessionName, logger)
	reader := mtproto.NewStatsReader(cfg.Telegram.APIID, cfg.Telegram.APIHash, sessionStorage, logger)

	pull := func() {
		pullCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		items, err := reader.RecentPostViews(pullCtx, cfg.Telegram.StatsAlias, statsPullLimit)
		if err != nil {
			logger.Warn().Err(err).Msg("collector: просмотры не собраны")
			return
		}
		if err := repoAdapter.UpsertPostMetrics(pullCtx, items); err != nil {
			logger.Error().Err(err).Msg("collector: просмотры не сохранены")
			return
		}
		logger.Info().Int("posts", len(items)).Msg("collector: просмотры обновлены")
	}

	go func() {
		pull()
		ticker := time.NewTicker(statsPullInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pull()
			}
		}
	}()
}

func runWorker(ctx context.Context, jobQueue domain.JobQueue, status domain.JobStatusRepo, scrapeSvc *scrape.Service, reportsSvc *reports.Service, logger zerolog.Logger) {
	for {
		job, ack, err := jobQueue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("collector: ошибка получения задачи")
			time.Sleep(2 * time.Second)
			continue
		}
		processJob(ctx, job, ack, status, scrapeSvc, reportsSvc, logger)
	}
}

func processJob(ctx context.Context, job domain.Job, ack domain.AckFunc, status domain.JobStatusRepo, scrapeSvc *scrape.Service, reportsSvc *reports.Service, logger zerolog.Logger) {
	log := logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()

	done, attempt, err := status.EnsureJob(job.ID)
	if err != nil {
		log.Error().Err(err).Msg("collector: статус задачи недоступен")
		_ = ack(false)
		return
	}
	if done {
		log.Info().Msg("collector: задача уже обработана")
		_ = ack(true)
		return
	}
	if attempt > maxJobAttempts {
		log.Error().Int("attempt", attempt).Msg("collector: лимит попыток исчерпан, задача отброшена")
		_ = ack(true)
		return
	}

	var runErr error
	switch job.Kind {
	case domain.JobKindDrop:
		dropJob := domain.DropJob{}
		if job.Drop != nil {
			dropJob = *job.Drop
		}
		_, runErr = scrapeSvc.Run(ctx, dropJob)
	case domain.JobKindReport:
		reportJob := domain.ReportJob{}
		if job.Report != nil {
			reportJob = *job.Report
		}
		runErr = reportsSvc.Generate(ctx, reportJob)
	default:
		log.Error().Msg("collector: неизвестный тип задачи, отброшена")
		_ = ack(true)
		return
	}

	if runErr != nil {
		log.Error().Err(runErr).Int("attempt", attempt).Msg("collector: задача не обработана")
		_ = ack(false)
		return
	}
	if err := status.MarkJobDone(job.ID); err != nil {
		log.Error().Err(err).Msg("collector: задача не помечена выполненной")
	}
	_ = ack(true)
	log.Info().Msg("collector: задача обработана")
}
