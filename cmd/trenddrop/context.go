package main

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"trenddrop/internal/adapters/copywriter"
	"trenddrop/internal/adapters/epn"
	"trenddrop/internal/adapters/marketsource"
	"trenddrop/internal/adapters/repo"
	"trenddrop/internal/adapters/storefront"
	"trenddrop/internal/adapters/telegram"
	"trenddrop/internal/domain"
	"trenddrop/internal/infra/config"
	"trenddrop/internal/infra/db"
	applog "trenddrop/internal/infra/log"
	"trenddrop/internal/infra/openai"
	"trenddrop/internal/usecase/drop"
)

// commandContext лениво собирает зависимости подкоманд: конфиг, логгер и БД
// поднимаются один раз на процесс.
type commandContext struct {
	cfg    *config.AppConfig
	logger zerolog.Logger
	pool   *pgxpool.Pool
}

func (c *commandContext) ensureConfig() config.AppConfig {
	if c.cfg == nil {
		cfg := config.Load()
		c.cfg = &cfg
		c.logger = applog.NewLogger(cfg.AppEnv)
	}
	return *c.cfg
}

func (c *commandContext) repo() (*repo.Postgres, error) {
	if c.pool == nil {
		cfg := c.ensureConfig()
		if cfg.PGDSN == "" {
			return nil, fmt.Errorf("не указана строка подключения (PG_DSN)")
		}
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("подключение к БД: %w", err)
		}
		c.pool = pool
	}
	return repo.NewPostgres(c.pool), nil
}

func (c *commandContext) close() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}

func (c *commandContext) publisher() (domain.ChannelPublisher, error) {
	cfg := c.ensureConfig()
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("создание бота: %w", err)
	}
	return telegram.NewPublisher(botAPI, telegram.ChatRouting{
		PublicChat: cfg.Telegram.PublicChat,
		PaidChat:   cfg.Telegram.PaidChat,
		AdminChat:  cfg.Telegram.AdminChat,
		DMChat:     cfg.Telegram.DMChat,
	}, c.logger), nil
}

func (c *commandContext) copywriter() domain.Copywriter {
	cfg := c.ensureConfig()
	if cfg.OpenAI.APIKey == "" {
		return copywriter.NewSimpleCopywriter()
	}
	client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	return copywriter.NewOpenAICopywriter(client, cfg.OpenAI.Model, c.logger)
}

func (c *commandContext) sources() []domain.MarketSource {
	cfg := c.ensureConfig()
	sources := []domain.MarketSource{
		marketsource.NewAmazonSource(c.logger),
		marketsource.NewAliexpressSource(c.logger),
	}
	if cfg.Ebay.ClientID != "" && cfg.Ebay.ClientSecret != "" {
		sources = append([]domain.MarketSource{
			marketsource.NewEbaySource(cfg.Ebay.ClientID, cfg.Ebay.ClientSecret, cfg.Ebay.BaseURL, c.logger),
		}, sources...)
	}
	return sources
}

// dropService собирает сервис публикации; без Redis кулдаун CTA держится
// только на журнале публикаций.
func (c *commandContext) dropService(repoAdapter *repo.Postgres) (*drop.Service, error) {
	cfg := c.ensureConfig()
	publisher, err := c.publisher()
	if err != nil {
		return nil, err
	}
	feed := storefront.NewFeedWriter(cfg.Storefront.DataDir, cfg.Storefront.ClickRedirectBase)
	affiliate := epn.NewWrapper(cfg.Ebay.CampaignID)
	return drop.NewService(repoAdapter, repoAdapter, repoAdapter, publisher, c.copywriter(), affiliate, feed, nil,
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
		}, c.logger), nil
}
