// Package scrape собирает карточки с маркетплейсов по трендовым темам,
// сохраняет их в хранилище и запускает публикацию подборки.
package scrape

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/usecase/trends"
)

// AffiliateWrapper оборачивает ссылку карточки в партнёрскую.
type AffiliateWrapper interface {
	Wrap(rawURL, customID string) string
}

// DropRunner публикует подборку после скрейпа.
type DropRunner interface {
	Run(ctx context.Context, job domain.DropJob) (domain.Run, error)
}

// Config — настройки скрейпа.
type Config struct {
	TopicsLimit      int
	VariantsPerTopic int
	PerPage          int
	// Picks — сколько карточек отбирать в подборку, если задача не задала
	// свой лимит.
	Picks           int
	SleepSecs       int
	SleepJitterSecs int
}

// Service выполняет one-shot пайплайн: темы → варианты запросов → поиск
// по источникам → синтетические сигналы → партнёрские ссылки → хранилище.
type Service struct {
	trends    *trends.Service
	sources   []domain.MarketSource
	listings  domain.ListingRepo
	affiliate AffiliateWrapper
	drop      DropRunner
	clock     domain.Clock
	cfg       Config
	log       zerolog.Logger

	sleep func(time.Duration)
}

// NewService создаёт сервис скрейпа. affiliate и drop опциональны.
func NewService(trendsSvc *trends.Service, sources []domain.MarketSource, listings domain.ListingRepo, affiliate AffiliateWrapper, dropRunner DropRunner, clock domain.Clock, cfg Config, logger zerolog.Logger) *Service {
	if cfg.TopicsLimit <= 0 {
		cfg.TopicsLimit = 4
	}
	if cfg.VariantsPerTopic <= 0 {
		cfg.VariantsPerTopic = 3
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 20
	}
	return &Service{
		trends:    trendsSvc,
		sources:   sources,
		listings:  listings,
		affiliate: affiliate,
		drop:      dropRunner,
		clock:     clock,
		cfg:       cfg,
		log:       logger.With().Str("component", "scrape").Logger(),
		sleep:     time.Sleep,
	}
}

// Run скрейпит карточки по задаче и передаёт публикацию дроп-сервису.
func (s *Service) Run(ctx context.Context, job domain.DropJob) (domain.Run, error) {
	collected, err := s.Collect(ctx, job)
	if err != nil {
		return domain.Run{}, err
	}
	if len(collected) > 0 {
		if err := s.listings.UpsertListings(ctx, collected); err != nil {
			s.log.Error().Err(err).Int("count", len(collected)).Msg("карточки не сохранены")
		}
	}
	if s.drop == nil {
		return domain.Run{Status: "success", ItemCount: len(collected)}, nil
	}
	if job.Picks <= 0 {
		job.Picks = s.cfg.Picks
	}
	return s.drop.Run(ctx, job)
}

// Collect обходит темы и источники и возвращает подготовленные карточки.
func (s *Service) Collect(ctx context.Context, job domain.DropJob) ([]domain.Listing, error) {
	topics := job.Topics
	if len(topics) == 0 {
		topics = s.trends.TopTopics(ctx, s.cfg.TopicsLimit)
	}
	perPage := job.PerPage
	if perPage <= 0 {
		perPage = s.cfg.PerPage
	}

	var collected []domain.Listing
	for _, topic := range topics {
		for _, variant := range trends.QueryVariants(topic, s.cfg.VariantsPerTopic) {
			for _, source := range s.sources {
				if err := ctx.Err(); err != nil {
					return collected, err
				}
				items, err := source.Search(ctx, variant, perPage)
				if err != nil {
					s.log.Warn().Err(err).Str("provider", source.Provider()).Str("query", variant).Msg("поиск не удался")
					continue
				}
				// listings_scraped_total инкрементируют сами источники.
				collected = append(collected, s.prepare(items, topic, variant)...)
				s.pause()
			}
		}
	}
	s.log.Info().Int("topics", len(topics)).Int("collected", len(collected)).Msg("скрейп завершён")
	return collected, nil
}

func (s *Service) prepare(items []domain.Listing, topic, variant string) []domain.Listing {
	now := s.clock.Now()
	out := make([]domain.Listing, 0, len(items))
	for _, l := range items {
		l.EnsureDefaults(now)
		if l.Keyword == "" {
			l.Keyword = variant
		}
		l.Tags = appendTag(l.Tags, topic)
		// У eBay Browse API нет готовой оценки спроса, сигнал синтезируется
		// из репутации продавца и ценового диапазона.
		if l.Provider == domain.ProviderEbay && l.Signals == 0 {
			l.Signals = SyntheticSignal(l)
		}
		if s.affiliate != nil && l.ClickURL == "" {
			l.ClickURL = s.affiliate.Wrap(l.URL, affiliateTopicID(topic))
		}
		out = append(out, l)
	}
	return out
}

// SyntheticSignal оценивает привлекательность карточки eBay: топ-рейтинг
// продавца, накопленный фидбек и ценовой диапазон импульсной покупки.
func SyntheticSignal(l domain.Listing) float64 {
	signal := 0.0
	if l.TopRated {
		signal += 5
	}
	feedback := float64(l.SellerFeedback) / 1000
	if feedback > 5 {
		feedback = 5
	}
	signal += feedback
	switch {
	case l.Price >= 15 && l.Price <= 150:
		signal += 4
	case l.Price >= 5 && l.Price < 15:
		signal += 2
	case l.Price > 150 && l.Price <= 400:
		signal += 1
	}
	return signal
}

func (s *Service) pause() {
	if s.cfg.SleepSecs <= 0 {
		return
	}
	d := time.Duration(s.cfg.SleepSecs) * time.Second
	if s.cfg.SleepJitterSecs > 0 {
		d += time.Duration(rand.Int63n(int64(s.cfg.SleepJitterSecs) * int64(time.Second)))
	}
	s.sleep(d)
}

func appendTag(tags []string, topic string) []string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return tags
	}
	for _, t := range tags {
		if strings.EqualFold(t, topic) {
			return tags
		}
	}
	return append(tags, topic)
}

func affiliateTopicID(topic string) string {
	id := strings.ReplaceAll(strings.TrimSpace(topic), " ", "_")
	if id == "" {
		id = "trend"
	}
	if len(id) > 40 {
		id = id[:40]
	}
	return id
}
