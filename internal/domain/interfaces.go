package domain

import (
	"context"
	"time"
)

// ListingRepo управляет карточками товаров в хранилище.
type ListingRepo interface {
	UpsertListings(ctx context.Context, listings []Listing) error
	ListCleanListings(ctx context.Context, providers []string, limit int) ([]Listing, error)
}

// PostedLog хранит недавно опубликованные карточки: ключи публикаций за окно
// и отметку о новой публикации. Пустые ключи не сохраняются и никогда не совпадают.
type PostedLog interface {
	RecentKeys(ctx context.Context, window time.Duration) (map[string]struct{}, error)
	MarkPosted(ctx context.Context, item PostedItem) error
}

// RunRepo сохраняет итоги прогонов публикации.
type RunRepo interface {
	SaveRun(ctx context.Context, run Run) error
	ListRecentRuns(ctx context.Context, limit int) ([]Run, error)
}

// ReportRunRepo сохраняет аудит генерации отчётов.
type ReportRunRepo interface {
	SaveReportRun(ctx context.Context, run ReportRun) error
	LatestReportRuns(ctx context.Context, limit int) ([]ReportRun, error)
}

// ClickRepo сохраняет переходы по редиректу витрины.
type ClickRepo interface {
	SaveClick(ctx context.Context, click Click) error
}

// PostMetricsRepo сохраняет метрики просмотров опубликованных постов.
type PostMetricsRepo interface {
	UpsertPostMetrics(ctx context.Context, items []PostMetric) error
	TopPostsByViews(ctx context.Context, since time.Time, limit int) ([]PostMetric, error)
}

// Cache используется для простых TTL-замков (кулдаун CTA).
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// MarketSource — поиск карточек в одном маркетплейсе.
type MarketSource interface {
	Provider() string
	Search(ctx context.Context, query string, limit int) ([]Listing, error)
}

// TopicSource отдаёт трендовые темы для поиска.
type TopicSource interface {
	TrendingTopics(ctx context.Context, limit int) ([]string, error)
}

// ChannelPublisher публикует сообщения в каналы по скоупу
// (public, paid, broadcast, admin, dm, all).
type ChannelPublisher interface {
	SendText(scope, text string, disablePreview bool) error
	SendPinnedText(scope, text string, disablePreview bool) error
	SendPhoto(scope, imageURL, caption string) error
}

// Copywriter генерирует маркетинговый текст карточки.
type Copywriter interface {
	MarketingCopy(ctx context.Context, listing Listing) (MarketingCopy, error)
	Caption(listing Listing) string
}

// ChannelStatsReader читает просмотры недавних постов канала.
type ChannelStatsReader interface {
	RecentPostViews(ctx context.Context, channelAlias string, limit int) ([]PostMetric, error)
}

// Clock — инжектируемый источник времени для скоринга срочности и тестов.
type Clock interface {
	Now() time.Time
}

// ClockFunc адаптирует функцию к интерфейсу Clock.
type ClockFunc func() time.Time

// Now возвращает текущее время.
func (f ClockFunc) Now() time.Time { return f() }
