// Package drop строит подборку карточек и публикует её в Telegram-каналы:
// дедуп с журналом публикаций, жёсткие фильтры, конверсионный скоринг,
// разнообразие по темам и продавцам, CTA с кулдауном.
package drop

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
	"trenddrop/internal/usecase/curation"
)

// AffiliateWrapper оборачивает ссылку карточки в партнёрскую.
type AffiliateWrapper interface {
	Wrap(rawURL, customID string) string
}

// StorefrontWriter обновляет JSON-фид витрины.
type StorefrontWriter interface {
	Write(listings []domain.Listing, now time.Time) error
}

// Config — настройки пайплайна публикации.
type Config struct {
	DedupeWindow      time.Duration
	MaxPerKeyword     int
	MinUniqueKeywords int
	MaxPerSeller      int
	CTAEveryN         int
	CTACooldown       time.Duration
	// PinCTA закрепляет CTA-сообщение в чатах скоупа.
	PinCTA        bool
	PublishLimit  int
	GumroadCTAURL string
}

// Service реализует публикацию подборок.
type Service struct {
	listings   domain.ListingRepo
	posted     domain.PostedLog
	runs       domain.RunRepo
	publisher  domain.ChannelPublisher
	copywriter domain.Copywriter
	affiliate  AffiliateWrapper
	storefront StorefrontWriter
	cache      domain.Cache
	clock      domain.Clock
	cfg        Config
	log        zerolog.Logger

	sleep func(time.Duration)
}

// NewService создаёт сервис подборок. affiliate, storefront и cache опциональны.
func NewService(listings domain.ListingRepo, posted domain.PostedLog, runs domain.RunRepo, publisher domain.ChannelPublisher, copywriter domain.Copywriter, affiliate AffiliateWrapper, storefront StorefrontWriter, cache domain.Cache, clock domain.Clock, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		listings:   listings,
		posted:     posted,
		runs:       runs,
		publisher:  publisher,
		copywriter: copywriter,
		affiliate:  affiliate,
		storefront: storefront,
		cache:      cache,
		clock:      clock,
		cfg:        cfg,
		log:        logger.With().Str("component", "drop").Logger(),
		sleep:      time.Sleep,
	}
}

// Run выполняет подборку по задаче: читает чистые карточки из хранилища,
// публикует выбранные, обновляет витрину и сохраняет итог прогона.
func (s *Service) Run(ctx context.Context, job domain.DropJob) (domain.Run, error) {
	start := s.clock.Now()
	defer func() {
		metrics.DropBuildSeconds.Observe(time.Since(start).Seconds())
	}()

	limit := job.PublishLimit
	if limit <= 0 {
		limit = job.Picks
	}
	if limit <= 0 {
		limit = s.cfg.PublishLimit
	}

	run := domain.Run{Status: "success", StartedAt: start.UTC()}

	products, err := s.listings.ListCleanListings(ctx, nil, 0)
	if err != nil {
		run.Status = "failed"
		run.Message = err.Error()
		run.FinishedAt = s.clock.Now().UTC()
		s.saveRun(ctx, run)
		return run, fmt.Errorf("drop: загрузка карточек: %w", err)
	}
	if len(products) == 0 {
		run.Status = "empty"
		run.Message = "нет карточек для публикации"
		run.FinishedAt = s.clock.Now().UTC()
		s.saveRun(ctx, run)
		return run, nil
	}

	picks, err := s.PublishListings(ctx, job.Scope, products, limit)
	if err != nil {
		run.Status = "failed"
		run.Message = err.Error()
		run.FinishedAt = s.clock.Now().UTC()
		s.saveRun(ctx, run)
		return run, err
	}

	if s.storefront != nil && len(picks) > 0 {
		enriched := s.enrichMarketing(ctx, picks)
		if err := s.storefront.Write(enriched, s.clock.Now()); err != nil {
			s.log.Error().Err(err).Msg("не удалось обновить витрину")
		}
	}

	run.TopicCount = distinctTagCount(products)
	run.ItemCount = len(picks)
	run.FinishedAt = s.clock.Now().UTC()
	s.saveRun(ctx, run)
	return run, nil
}

// PublishListings прогоняет карточки через пайплайн и публикует отобранные.
// Возвращает опубликованные карточки в порядке отправки.
func (s *Service) PublishListings(ctx context.Context, scope string, products []domain.Listing, limit int) ([]domain.Listing, error) {
	if len(products) == 0 {
		return nil, nil
	}
	if scope == "" {
		scope = "broadcast"
	}
	if limit < 1 {
		limit = 1
	}
	now := s.clock.Now()

	recent, err := s.posted.RecentKeys(ctx, s.cfg.DedupeWindow)
	if err != nil {
		return nil, fmt.Errorf("drop: журнал публикаций: %w", err)
	}

	prepared := make([]domain.Listing, len(products))
	copy(prepared, products)
	for i := range prepared {
		prepared[i].EnsureDefaults(now)
	}
	collapsed := curation.DedupeNearDuplicates(prepared)

	type scoredListing struct {
		listing domain.Listing
		score   float64
	}
	scored := make([]scoredListing, 0, len(collapsed))
	for _, l := range collapsed {
		canonical := curation.CanonicalizeURL(l.URL)
		key := curation.DedupeKey(canonical)
		if key != "" {
			if _, seen := recent[key]; seen {
				continue
			}
		}
		l.CanonicalURL = canonical
		l.URLKey = key

		if ok, reason := curation.PassesHardFilters(l); !ok {
			metrics.HardFilterRejections.WithLabelValues(reason).Inc()
			continue
		}
		score := curation.ConversionScore(l, now)
		if score <= -1e8 {
			continue
		}
		scored = append(scored, scoredListing{listing: l, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	ranked := make([]domain.Listing, len(scored))
	for i, sl := range scored {
		ranked[i] = sl.listing
	}

	varied := curation.SelectWithVariety(ranked, limit, s.cfg.MaxPerKeyword, s.cfg.MinUniqueKeywords)
	maxPerSeller := s.cfg.MaxPerSeller
	if maxPerSeller < 1 {
		maxPerSeller = 1
	}
	pick := curation.EnforceSellerDiversity(varied, maxPerSeller)
	pick = curation.TopUpPicks(pick, varied, limit, maxPerSeller)

	s.log.Info().
		Str("scope", scope).
		Int("candidates", len(ranked)).
		Int("picks", len(pick)).
		Msg("подборка собрана")

	cta := s.newCTAState(ctx, scope)

	published := make([]domain.Listing, 0, len(pick))
	for _, l := range pick {
		if s.affiliate != nil {
			l.URL = s.affiliate.Wrap(l.URL, affiliateCustomID(l))
		}
		caption := BuildProductCaption(l, scope, now)

		var sendErr error
		if l.ImageURL != "" {
			sendErr = s.publisher.SendPhoto(scope, l.ImageURL, caption)
		} else {
			sendErr = s.publisher.SendText(scope, caption, false)
		}
		if sendErr != nil {
			s.log.Error().Err(sendErr).Str("title", l.Title).Msg("карточка не опубликована")
			continue
		}
		published = append(published, l)
		metrics.PostsPublished.WithLabelValues(scope).Inc()

		if err := s.posted.MarkPosted(ctx, domain.PostedItem{
			URLKey:       l.URLKey,
			CanonicalURL: l.CanonicalURL,
			Keyword:      l.Keyword,
			Title:        l.Title,
			Provider:     l.Provider,
			Source:       l.Source,
			Scope:        scope,
			PostedAt:     s.clock.Now().UTC(),
		}); err != nil {
			s.log.Error().Err(err).Str("key", l.URLKey).Msg("не удалось отметить публикацию")
		}

		if len(published)%cta.everyN == 0 {
			s.maybeSendCTA(ctx, scope, cta)
		}

		s.sleep(550*time.Millisecond + time.Duration(rand.Int63n(int64(350*time.Millisecond))))
	}

	// Закрывающий CTA, если подборка ушла без промежуточного.
	if len(published) > 0 {
		s.maybeSendCTA(ctx, scope, cta)
	}

	return published, nil
}

type ctaState struct {
	everyN       int
	cooldown     time.Duration
	recentlySent bool
	lastSent     time.Time
}

func (s *Service) newCTAState(ctx context.Context, scope string) *ctaState {
	everyN := s.cfg.CTAEveryN
	if everyN < 2 {
		everyN = 2
	}
	cooldown := s.cfg.CTACooldown
	if cooldown < 15*time.Minute {
		cooldown = 15 * time.Minute
	}

	state := &ctaState{everyN: everyN, cooldown: cooldown}

	// Кулдаун переживает перезапуск: ключ CTA хранится в журнале публикаций.
	window := cooldown.Round(time.Hour)
	if window < cooldown {
		window += time.Hour
	}
	if window < time.Hour {
		window = time.Hour
	}
	recent, err := s.posted.RecentKeys(ctx, window)
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось проверить кулдаун CTA")
		return state
	}
	if _, ok := recent[CTAKey(scope)]; ok {
		state.recentlySent = true
	}
	return state
}

func (s *Service) maybeSendCTA(ctx context.Context, scope string, state *ctaState) {
	if state.recentlySent {
		return
	}
	if !state.lastSent.IsZero() && s.clock.Now().Sub(state.lastSent) < state.cooldown {
		return
	}

	send := func() error {
		text := BuildCTAText(s.cfg.GumroadCTAURL)
		var sendErr error
		if s.cfg.PinCTA {
			sendErr = s.publisher.SendPinnedText(scope, text, true)
		} else {
			sendErr = s.publisher.SendText(scope, text, true)
		}
		if sendErr != nil {
			return sendErr
		}
		return s.posted.MarkPosted(ctx, domain.PostedItem{
			URLKey:       CTAKey(scope),
			CanonicalURL: "cta",
			Keyword:      "cta",
			Title:        "telegram_cta",
			Provider:     "telegram",
			Source:       "telegram",
			Scope:        scope,
			PostedAt:     s.clock.Now().UTC(),
		})
	}

	ran := false
	var err error
	if s.cache != nil {
		err = s.cache.Once(ctx, CTAKey(scope), state.cooldown, func() error {
			ran = true
			return send()
		})
	} else {
		ran = true
		err = send()
	}
	if err != nil {
		s.log.Error().Err(err).Str("scope", scope).Msg("CTA не отправлен")
		return
	}
	if ran {
		state.recentlySent = true
		state.lastSent = s.clock.Now()
	}
}

func (s *Service) enrichMarketing(ctx context.Context, picks []domain.Listing) []domain.Listing {
	enriched := make([]domain.Listing, len(picks))
	copy(enriched, picks)
	for i := range enriched {
		if s.copywriter == nil {
			continue
		}
		mc, err := s.copywriter.MarketingCopy(ctx, enriched[i])
		if err != nil {
			s.log.Warn().Err(err).Str("title", enriched[i].Title).Msg("маркетинговый текст не сгенерирован")
			continue
		}
		enriched[i].Headline = mc.Headline
		enriched[i].Blurb = mc.Blurb
		enriched[i].Emojis = mc.Emojis
		enriched[i].Caption = s.copywriter.Caption(enriched[i])
	}
	return enriched
}

func (s *Service) saveRun(ctx context.Context, run domain.Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SaveRun(ctx, run); err != nil {
		s.log.Error().Err(err).Msg("итог прогона не сохранён")
	}
}

// affiliateCustomID строит subid партнёрской ссылки из первой темы карточки.
func affiliateCustomID(l domain.Listing) string {
	tag := ""
	if len(l.Tags) > 0 {
		tag = l.Tags[0]
	}
	if tag == "" {
		tag = l.Keyword
	}
	if tag == "" {
		tag = "trend"
	}
	tag = strings.ReplaceAll(tag, " ", "_")
	if len(tag) > 40 {
		tag = tag[:40]
	}
	return tag
}

// distinctTagCount считает различные темы входных карточек; минимум 1.
func distinctTagCount(products []domain.Listing) int {
	seen := make(map[string]struct{})
	for _, p := range products {
		for _, tag := range p.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			seen[tag] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return 1
	}
	return len(seen)
}
