package marketsource

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
)

const (
	amazonSearchURL   = "https://www.amazon.com/s"
	amazonTitleMaxLen = 200
	amazonUserAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	ratingRe    = regexp.MustCompile(`([\d.]+)`)
	nonDigitsRe = regexp.MustCompile(`[^\d]`)
)

// AmazonSource скрейпит поисковую выдачу Amazon через headless-браузер.
type AmazonSource struct {
	log   zerolog.Logger
	clock domain.Clock
}

var _ domain.MarketSource = (*AmazonSource)(nil)

// NewAmazonSource создаёт источник Amazon.
func NewAmazonSource(logger zerolog.Logger) *AmazonSource {
	return &AmazonSource{
		log:   logger.With().Str("component", "marketsource_amazon").Logger(),
		clock: domain.ClockFunc(time.Now),
	}
}

// Provider возвращает идентификатор маркетплейса.
func (s *AmazonSource) Provider() string { return domain.ProviderAmazon }

type amazonCard struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	ImageURL   string `json:"imageUrl"`
	PriceText  string `json:"priceText"`
	RatingText string `json:"ratingText"`
	ReviewText string `json:"reviewText"`
	Choice     bool   `json:"choice"`
}

// Search открывает страницу поиска и извлекает карточки из DOM.
func (s *AmazonSource) Search(ctx context.Context, query string, limit int) ([]domain.Listing, error) {
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("k", query)
	params.Set("s", "review-rank")
	params.Set("ref", "sr_nr_p_76_1")
	pageURL := amazonSearchURL + "?" + params.Encode()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(amazonUserAgent),
	)
	if bin := findChromeBinary(); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	var cards []amazonCard
	start := time.Now()
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(4*time.Second),
		chromedp.Evaluate(`
			(function() {
				var results = [];
				var limit = `+strconv.Itoa(limit)+`;
				var cards = document.querySelectorAll("div[data-component-type='s-search-result']");
				for (var i = 0; i < cards.length && results.length < limit; i++) {
					var card = cards[i];
					var titleEl = card.querySelector('h2');
					var linkEl = card.querySelector('h2 a[href]') || card.querySelector('a.a-link-normal[href]');
					if (!linkEl) continue;
					var title = titleEl ? titleEl.innerText.trim() : linkEl.innerText.trim();
					if (!title) continue;
					var whole = card.querySelector('span.a-price-whole');
					var fraction = card.querySelector('span.a-price-fraction');
					var priceText = '';
					if (whole) {
						priceText = whole.innerText.trim();
						if (fraction) priceText += '.' + fraction.innerText.trim();
					}
					var img = card.querySelector('img[src]');
					var ratingEl = card.querySelector('span.a-icon-alt');
					var reviewEl = card.querySelector('span.a-size-base.s-underline-text');
					results.push({
						title: title,
						url: linkEl.href,
						imageUrl: img ? img.src : '',
						priceText: priceText,
						ratingText: ratingEl ? ratingEl.innerText : '',
						reviewText: reviewEl ? reviewEl.innerText : '',
						choice: card.innerText.indexOf("Amazon's Choice") !== -1
					});
				}
				return results;
			})()
		`, &cards),
	)
	metrics.ObserveNetworkRequest("amazon", "search_page", "chromedp", start, err)
	if err != nil {
		return nil, fmt.Errorf("amazon: fetch search page: %w", err)
	}

	now := s.clock.Now().UTC()
	listings := make([]domain.Listing, 0, len(cards))
	for _, card := range cards {
		listings = append(listings, s.mapCard(card, query, now))
	}
	metrics.ListingsScraped.WithLabelValues(domain.ProviderAmazon).Add(float64(len(listings)))
	s.log.Info().Str("query", query).Int("items", len(listings)).Msg("Amazon поиск выполнен")
	return listings, nil
}

func (s *AmazonSource) mapCard(card amazonCard, query string, now time.Time) domain.Listing {
	title := card.Title
	if len([]rune(title)) > amazonTitleMaxLen {
		title = string([]rune(title)[:amazonTitleMaxLen])
	}

	rating := extractRating(card.RatingText)
	reviews := extractReviews(card.ReviewText)

	l := domain.Listing{
		Title:          title,
		URL:            card.URL,
		ImageURL:       card.ImageURL,
		Price:          parsePrice(card.PriceText),
		Currency:       "USD",
		SellerFeedback: reviews,
		Signals:        amazonSignals(rating, reviews),
		TopRated:       card.Choice,
		Provider:       domain.ProviderAmazon,
		Source:         domain.ProviderAmazon,
		Keyword:        query,
		InsertedAt:     now,
	}
	l.EnsureDefaults(now)
	return l
}

// amazonSignals объединяет рейтинг и количество отзывов: log10 гасит
// огромные SKU, чтобы сигнал не взрывался.
func amazonSignals(rating float64, reviews int) float64 {
	if rating <= 0 || reviews <= 0 {
		return 0
	}
	return rating * math.Log10(float64(reviews)+10)
}

func extractRating(text string) float64 {
	m := ratingRe.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

func extractReviews(text string) int {
	digits := nonDigitsRe.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return v
}

var priceRe = regexp.MustCompile(`[\d][\d,]*(?:\.\d+)?`)

// parsePrice вытаскивает первое число из строки цены; мусор и пустота дают 0.
func parsePrice(text string) float64 {
	m := priceRe.FindString(text)
	if m == "" {
		return 0
	}
	m = strings.ReplaceAll(m, ",", "")
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
