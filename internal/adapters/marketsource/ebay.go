package marketsource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
)

const (
	ebayDefaultBaseURL = "https://api.ebay.com"
	ebayOAuthScope     = "https://api.ebay.com/oauth/api_scope"
	ebayUserAgent      = "TrendDropBot/1.0"
	ebayTitleMaxLen    = 160
)

// retryBackoffs — паузы перед повторами поиска. Нулевая пауза — первая попытка.
var retryBackoffs = []time.Duration{0, 2 * time.Second, 4 * time.Second}

// EbaySource ищет карточки через eBay Buy Browse API.
// OAuth-токен client credentials кэшируется в памяти до истечения минус минута.
type EbaySource struct {
	http         *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	log          zerolog.Logger
	clock        domain.Clock

	mu          sync.Mutex
	accessToken string
	tokenExp    time.Time
}

var _ domain.MarketSource = (*EbaySource)(nil)

// NewEbaySource создаёт источник eBay.
func NewEbaySource(clientID, clientSecret, baseURL string, logger zerolog.Logger) *EbaySource {
	if baseURL == "" {
		baseURL = ebayDefaultBaseURL
	}
	return &EbaySource{
		http:         &http.Client{Timeout: 25 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		log:          logger.With().Str("component", "marketsource_ebay").Logger(),
		clock:        domain.ClockFunc(time.Now),
	}
}

// Provider возвращает идентификатор маркетплейса.
func (s *EbaySource) Provider() string { return domain.ProviderEbay }

func (s *EbaySource) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.accessToken != "" && s.tokenExp.Add(-time.Minute).After(now) {
		return s.accessToken, nil
	}
	if s.clientID == "" || s.clientSecret == "" {
		return "", fmt.Errorf("ebay: client id/secret не заданы")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", ebayOAuthScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("ebay: build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := s.http.Do(req)
	metrics.ObserveNetworkRequest("ebay", "oauth_token", "identity", start, err)
	if err != nil {
		return "", fmt.Errorf("ebay: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ebay: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ebay: oauth failed %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("ebay: decode token response: %w", err)
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 7200
	}
	s.accessToken = tok.AccessToken
	s.tokenExp = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	return s.accessToken, nil
}

type ebayItemSummary struct {
	Title string `json:"title"`
	Price struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	Image struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	ItemWebURL          string   `json:"itemWebUrl"`
	ItemAffiliateWebURL string   `json:"itemAffiliateWebUrl"`
	BuyingOptions       []string `json:"buyingOptions"`
	Condition           string   `json:"condition"`
	ConditionID         string   `json:"conditionId"`
	ItemEndDate         string   `json:"itemEndDate"`
	ShippingOptions     []struct {
		ShippingCost struct {
			Value string `json:"value"`
		} `json:"shippingCost"`
	} `json:"shippingOptions"`
	ReturnsAccepted *bool `json:"returnsAccepted"`
	Seller          struct {
		Username      string `json:"username"`
		SellerID      string `json:"sellerId"`
		FeedbackScore int    `json:"feedbackScore"`
	} `json:"seller"`
	ItemCreationDate string `json:"itemCreationDate"`
	ItemStartDate    string `json:"itemStartDate"`
}

type ebaySearchResponse struct {
	ItemSummaries []ebayItemSummary `json:"itemSummaries"`
}

// Search выполняет поиск по Browse API с ограниченными повторами.
func (s *EbaySource) Search(ctx context.Context, query string, limit int) ([]domain.Listing, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 12
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("filter", "priceCurrency:USD")
	params.Set("sort", "BEST_MATCH")
	endpoint := s.baseURL + "/buy/browse/v1/item_summary/search?" + params.Encode()

	var body []byte
	for attempt, backoff := range retryBackoffs {
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("ebay: build search request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-EBAY-C-MARKETPLACE-ID", "EBAY_US")
		req.Header.Set("User-Agent", ebayUserAgent)

		start := time.Now()
		resp, err := s.http.Do(req)
		metrics.ObserveNetworkRequest("ebay", "browse_search", "item_summary", start, err)
		if err != nil {
			if attempt == len(retryBackoffs)-1 {
				return nil, fmt.Errorf("ebay: search request: %w", err)
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("ebay: read search response: %w", readErr)
		}
		if resp.StatusCode == http.StatusOK {
			body = data
			break
		}
		s.log.Warn().
			Int("status", resp.StatusCode).
			Str("query", query).
			Int("attempt", attempt+1).
			Str("body", truncate(string(data), 200)).
			Msg("eBay Browse вернул ошибку")
	}
	if body == nil {
		return nil, nil
	}

	var search ebaySearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("ebay: decode search response: %w", err)
	}

	now := s.clock.Now().UTC()
	listings := make([]domain.Listing, 0, len(search.ItemSummaries))
	for _, it := range search.ItemSummaries {
		listings = append(listings, s.mapItem(it, query, now))
	}
	metrics.ListingsScraped.WithLabelValues(domain.ProviderEbay).Add(float64(len(listings)))
	s.log.Info().Str("query", query).Int("items", len(listings)).Msg("eBay Browse поиск выполнен")
	return listings, nil
}

func (s *EbaySource) mapItem(it ebayItemSummary, query string, now time.Time) domain.Listing {
	title := it.Title
	if len([]rune(title)) > ebayTitleMaxLen {
		title = string([]rune(title)[:ebayTitleMaxLen])
	}

	price, _ := strconv.ParseFloat(it.Price.Value, 64)
	currency := it.Price.Currency
	if currency == "" {
		currency = "USD"
	}

	listingURL := it.ItemWebURL
	if listingURL == "" {
		listingURL = it.ItemAffiliateWebURL
	}

	var shipping *float64
	if len(it.ShippingOptions) > 0 {
		if v, err := strconv.ParseFloat(it.ShippingOptions[0].ShippingCost.Value, 64); err == nil {
			shipping = &v
		}
	}

	sellerUsername := it.Seller.Username
	if sellerUsername == "" {
		sellerUsername = it.Seller.SellerID
	}

	insertedAt := now
	for _, raw := range []string{it.ItemCreationDate, it.ItemStartDate} {
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			insertedAt = ts
			break
		}
	}

	l := domain.Listing{
		Title:           title,
		URL:             listingURL,
		Price:           price,
		Currency:        currency,
		ImageURL:        it.Image.ImageURL,
		SellerUsername:  sellerUsername,
		SellerID:        it.Seller.SellerID,
		SellerFeedback:  it.Seller.FeedbackScore,
		Provider:        domain.ProviderEbay,
		Source:          domain.ProviderEbay,
		Keyword:         query,
		BuyingOptions:   it.BuyingOptions,
		Condition:       it.Condition,
		ConditionID:     it.ConditionID,
		EndTime:         it.ItemEndDate,
		ShippingCost:    shipping,
		ReturnsAccepted: it.ReturnsAccepted,
		InsertedAt:      insertedAt,
	}
	l.EnsureDefaults(now)
	return l
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
