package marketsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
)

const (
	aliBaseURL     = "https://www.aliexpress.com"
	aliSearchURL   = "https://www.aliexpress.com/wholesale"
	aliTitleMaxLen = 200
)

var (
	runParamsRe   = regexp.MustCompile(`(?s)window\.runParams\s*=\s*(\{.*?\});`)
	punishTokenRe = regexp.MustCompile(`//www\.aliexpress\.com/[^\s"']+/punish\?x5secdata=([^"'\\]+)`)

	// ErrAliexpressBlocked — выдача подменена античат-страницей, и обойти её не удалось.
	ErrAliexpressBlocked = errors.New("aliexpress: запрос заблокирован антиботом")
)

// AliexpressSource скрейпит поисковую выдачу AliExpress: основной путь —
// JSON из window.runParams, запасной — разбор карточек-ссылок из HTML.
type AliexpressSource struct {
	http  *http.Client
	log   zerolog.Logger
	clock domain.Clock
}

var _ domain.MarketSource = (*AliexpressSource)(nil)

// NewAliexpressSource создаёт источник AliExpress.
func NewAliexpressSource(logger zerolog.Logger) *AliexpressSource {
	return &AliexpressSource{
		http:  &http.Client{Timeout: 30 * time.Second},
		log:   logger.With().Str("component", "marketsource_aliexpress").Logger(),
		clock: domain.ClockFunc(time.Now),
	}
}

// Provider возвращает идентификатор маркетплейса.
func (s *AliexpressSource) Provider() string { return domain.ProviderAliexpress }

// Search загружает страницу выдачи и извлекает карточки.
func (s *AliexpressSource) Search(ctx context.Context, query string, limit int) ([]domain.Listing, error) {
	if limit <= 0 {
		limit = 20
	}

	page, err := s.fetchSearchHTML(ctx, query)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	listings, itemCount := s.parseRunParams(page, query, limit, now)
	if len(listings) == 0 {
		if fields := runParamsErrorFields(page); len(fields) > 0 {
			s.log.Warn().Str("query", query).Interface("errors", fields).Msg("AliExpress вернул ошибку в payload")
			return nil, fmt.Errorf("aliexpress: api error for query %q", query)
		}
		s.log.Warn().Str("query", query).Int("item_array_len", itemCount).Msg("runParams не дал строк, пробуем разбор карточек")
		listings = s.parseAnchorCards(page, query, limit, now)
	}
	metrics.ListingsScraped.WithLabelValues(domain.ProviderAliexpress).Add(float64(len(listings)))
	s.log.Info().Str("query", query).Int("items", len(listings)).Msg("AliExpress поиск выполнен")
	return listings, nil
}

func (s *AliexpressSource) fetchSearchHTML(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("SearchText", query)
	params.Set("catId", "0")
	endpoint := aliSearchURL + "?" + params.Encode()

	page, status, err := s.get(ctx, endpoint, "search")
	if err != nil {
		return "", fmt.Errorf("aliexpress: fetch search page: %w", err)
	}
	if containsPunish(page) {
		page, err = s.followPunishFlow(ctx, page, query)
		if err != nil {
			return "", err
		}
		s.log.Info().Str("query", query).Msg("антибот-проверка AliExpress пройдена")
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("aliexpress: unexpected status %d for query %q", status, query)
	}
	return page, nil
}

func (s *AliexpressSource) get(ctx context.Context, endpoint, operation string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", amazonUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := s.http.Do(req)
	metrics.ObserveNetworkRequest("aliexpress", operation, "wholesale", start, err)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(body), resp.StatusCode, nil
}

func containsPunish(page string) bool {
	return strings.Contains(page, "x5secdata") && strings.Contains(page, "punish")
}

func (s *AliexpressSource) followPunishFlow(ctx context.Context, page, query string) (string, error) {
	m := punishTokenRe.FindStringSubmatch(page)
	if m == nil {
		s.log.Warn().Str("query", query).Msg("обнаружена антибот-страница, но токен не найден")
		return page, nil
	}
	punishURL := aliBaseURL + "/wholesale/_____tmd_____/punish?x5secdata=" + m[1]
	body, status, err := s.get(ctx, punishURL, "punish")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAliexpressBlocked, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrAliexpressBlocked, status)
	}
	if body == "" {
		return page, nil
	}
	return body, nil
}

type aliRunParams struct {
	Mods struct {
		ItemList struct {
			Content []aliItem `json:"content"`
		} `json:"itemList"`
	} `json:"mods"`
}

type aliItem struct {
	Title               string          `json:"title"`
	ProductDetailURL    string          `json:"productDetailUrl"`
	ProductURL          string          `json:"productUrl"`
	Price               json.RawMessage `json:"price"`
	ImageURL            string          `json:"imageUrl"`
	SellerPositiveRate  json.RawMessage `json:"sellerPositiveRate"`
	ProductPositiveRate json.RawMessage `json:"productPositiveRate"`
	ItemEvalScore       json.RawMessage `json:"itemEvalScore"`
	SuperSupplier       bool            `json:"superSupplier"`
	IsPreferred         bool            `json:"isPreferred"`
}

func (s *AliexpressSource) parseRunParams(page, query string, limit int, now time.Time) ([]domain.Listing, int) {
	m := runParamsRe.FindStringSubmatch(page)
	if m == nil {
		return nil, 0
	}
	var payload aliRunParams
	if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
		s.log.Warn().Err(err).Msg("не удалось разобрать runParams JSON")
		return nil, 0
	}
	items := payload.Mods.ItemList.Content

	listings := make([]domain.Listing, 0, limit)
	for _, item := range items {
		if item.Title == "" {
			continue
		}
		itemURL := normalizeAliURL(item.ProductDetailURL)
		if itemURL == "" {
			itemURL = normalizeAliURL(item.ProductURL)
		}
		priceText := rawToString(item.Price)
		currency := "USD"
		if strings.Contains(priceText, "руб") {
			currency = "RUB"
		}
		feedback := coerceInt(item.SellerPositiveRate)
		if feedback == 0 {
			feedback = coerceInt(item.ProductPositiveRate)
		}
		l := domain.Listing{
			Title:          capRunes(item.Title, aliTitleMaxLen),
			URL:            itemURL,
			ImageURL:       normalizeAliURL(item.ImageURL),
			Price:          parsePrice(priceText),
			Currency:       currency,
			SellerFeedback: feedback,
			Signals:        coerceFloat(item.ItemEvalScore),
			TopRated:       item.SuperSupplier || item.IsPreferred,
			Provider:       domain.ProviderAliexpress,
			Source:         domain.ProviderAliexpress,
			Keyword:        query,
			InsertedAt:     now,
		}
		l.EnsureDefaults(now)
		listings = append(listings, l)
		if len(listings) >= limit {
			break
		}
	}
	return listings, len(items)
}

// parseAnchorCards — запасной разбор выдачи без runParams: все ссылки с
// заголовком считаются карточками, цена и картинка — best-effort.
func (s *AliexpressSource) parseAnchorCards(page, query string, limit int, now time.Time) []domain.Listing {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var listings []domain.Listing
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(listings) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrValue(n, "href")
			title := attrValue(n, "title")
			if title == "" {
				title = strings.TrimSpace(nodeText(n))
			}
			if href != "" && title != "" {
				l := domain.Listing{
					Title:      capRunes(title, aliTitleMaxLen),
					URL:        normalizeAliURL(href),
					ImageURL:   normalizeAliURL(firstImgSrc(n)),
					Price:      parsePrice(firstPriceText(n)),
					Currency:   "USD",
					Provider:   domain.ProviderAliexpress,
					Source:     domain.ProviderAliexpress,
					Keyword:    query,
					InsertedAt: now,
				}
				l.EnsureDefaults(now)
				listings = append(listings, l)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return listings
}

func runParamsErrorFields(page string) map[string]string {
	m := runParamsRe.FindStringSubmatch(page)
	if m == nil {
		return nil
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
		return nil
	}
	fields := make(map[string]string)
	containers := []map[string]json.RawMessage{payload}
	if data, ok := payload["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data, &inner); err == nil {
			containers = append(containers, inner)
		}
	}
	for _, container := range containers {
		for _, key := range []string{"error", "error_code", "errorCode", "resp_code", "respCode", "resp_msg", "respMsg"} {
			raw, ok := container[key]
			if !ok {
				continue
			}
			value := strings.Trim(string(raw), `"`)
			if value == "" || value == "0" || value == "null" {
				continue
			}
			fields[key] = value
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func normalizeAliURL(raw string) string {
	switch {
	case raw == "":
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return aliBaseURL + raw
	default:
		return raw
	}
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func coerceInt(raw json.RawMessage) int {
	text := rawToString(raw)
	if text == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return int(v)
	}
	digits := nonDigitsRe.ReplaceAllString(text, "")
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return v
}

func coerceFloat(raw json.RawMessage) float64 {
	text := rawToString(raw)
	if text == "" {
		return 0
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return v
}

func capRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func firstImgSrc(n *html.Node) string {
	var src string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if src != "" {
			return
		}
		if node.Type == html.ElementNode && node.Data == "img" {
			src = attrValue(node, "src")
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return src
}

func firstPriceText(n *html.Node) string {
	var text string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if text != "" {
			return
		}
		if node.Type == html.ElementNode && strings.Contains(attrValue(node, "class"), "price") {
			text = nodeText(node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return text
}
