package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Провайдеры маркетплейсов, которые умеет обрабатывать пайплайн.
const (
	ProviderEbay       = "ebay"
	ProviderAmazon     = "amazon"
	ProviderAliexpress = "aliexpress"
	ProviderGumroad    = "gumroad"
	ProviderPayhip     = "payhip"
	ProviderManual     = "manual"
)

var allowedProviders = map[string]struct{}{
	ProviderEbay:       {},
	ProviderAmazon:     {},
	ProviderAliexpress: {},
	ProviderGumroad:    {},
	ProviderPayhip:     {},
	ProviderManual:     {},
}

// Listing описывает одну карточку товара, полученную из маркетплейса.
// Данные источника ненадёжны: все дефолты применяются один раз в EnsureDefaults.
type Listing struct {
	ID              string
	Title           string
	URL             string
	CanonicalURL    string
	URLKey          string
	Price           float64
	Currency        string
	ImageURL        string
	SellerUsername  string
	SellerID        string
	SellerFeedback  int
	TopRated        bool
	Signals         float64
	Provider        string
	Source          string
	Keyword         string
	Tags            []string
	BuyingOptions   []string
	Condition       string
	ConditionID     string
	EndTime         string
	ShippingCost    *float64
	ReturnsAccepted *bool
	InsertedAt      time.Time

	// Маркетинговые поля, заполняются копирайтером перед публикацией.
	Headline string
	Blurb    string
	Emojis   string
	Caption  string
	ClickURL string
}

// EnsureDefaults приводит карточку к минимально пригодному для ранжирования виду.
func (l *Listing) EnsureDefaults(now time.Time) {
	provider := strings.ToLower(strings.TrimSpace(l.Provider))
	if provider == "" {
		provider = strings.ToLower(strings.TrimSpace(l.Source))
	}
	if _, ok := allowedProviders[provider]; !ok {
		provider = ProviderManual
	}
	l.Provider = provider
	if strings.TrimSpace(l.Source) == "" {
		l.Source = provider
	}
	if strings.TrimSpace(l.Currency) == "" {
		l.Currency = "USD"
	}
	if l.Price < 0 {
		l.Price = 0
	}
	if l.SellerFeedback < 0 {
		l.SellerFeedback = 0
	}
	if l.Signals < 0 {
		l.Signals = 0
	}
	if l.InsertedAt.IsZero() {
		l.InsertedAt = now
	}
	if l.ID == "" && l.URL != "" {
		l.ID = ListingID(l.Provider, l.URL)
	}
}

// ListingID строит стабильный идентификатор карточки: UUIDv5 от provider:url.
func ListingID(provider, url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(provider+":"+url)).String()
}

// PostedItem — запись о публикации карточки в канал.
type PostedItem struct {
	URLKey       string
	CanonicalURL string
	Keyword      string
	Title        string
	Provider     string
	Source       string
	Scope        string
	PostedAt     time.Time
}

// Run — итог одного прогона публикации.
type Run struct {
	ID         int64
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	TopicCount int
	ItemCount  int
	Message    string
}

// ReportRun — аудит генерации одного отчётного пакета.
type ReportRun struct {
	ID              int64
	Provider        string
	RunStartedAt    time.Time
	DataWindowLabel string
	ProductsTotal   int
	CuratedCount    int
	Success         bool
	PDFURL          string
	CSVURL          string
	ErrorMessage    string
}

// Click — переход по редиректу витрины.
type Click struct {
	TargetURL string
	Referer   string
	UserAgent string
	ClickedAt time.Time
}

// PostMetric — просмотры опубликованного поста в канале.
type PostMetric struct {
	ChannelAlias string
	TGMsgID      int64
	Views        int
	Forwards     int
	PostedAt     time.Time
	CollectedAt  time.Time
}

// MarketingCopy — сгенерированный маркетинговый текст карточки.
type MarketingCopy struct {
	Headline string
	Blurb    string
	Emojis   string
}

// ReportArtifacts — файлы и публичные ссылки одного отчётного пакета.
type ReportArtifacts struct {
	Provider string
	PDFPath  string
	CSVPath  string
	ZipPath  string
	PDFURL   string
	CSVURL   string
	ZipURL   string
}

// MTProtoAccount — MTProto-аккаунт для чтения статистики каналов.
type MTProtoAccount struct {
	Name    string
	APIID   int
	APIHash string
}
