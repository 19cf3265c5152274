package trendsfeed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
)

const defaultFeedURL = "https://trends.google.com/trending/rss"

// RSSFeed читает дневной RSS-фид Google Trends.
type RSSFeed struct {
	http    *http.Client
	feedURL string
	geo     string
	log     zerolog.Logger
}

var _ domain.TopicSource = (*RSSFeed)(nil)

// NewRSSFeed создаёт источник трендовых тем.
func NewRSSFeed(geo string, logger zerolog.Logger) *RSSFeed {
	if geo == "" {
		geo = "US"
	}
	return &RSSFeed{
		http:    &http.Client{Timeout: 20 * time.Second},
		feedURL: defaultFeedURL,
		geo:     strings.ToUpper(geo),
		log:     logger.With().Str("component", "trendsfeed").Logger(),
	}
}

type rssDocument struct {
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
		} `xml:"item"`
	} `xml:"channel"`
}

// TrendingTopics возвращает заголовки трендов, максимум limit штук.
func (f *RSSFeed) TrendingTopics(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 8
	}

	endpoint := f.feedURL + "?" + url.Values{"geo": {f.geo}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("trendsfeed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml")

	start := time.Now()
	resp, err := f.http.Do(req)
	metrics.ObserveNetworkRequest("google_trends", "daily_rss", f.geo, start, err)
	if err != nil {
		return nil, fmt.Errorf("trendsfeed: fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trendsfeed: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("trendsfeed: read feed: %w", err)
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("trendsfeed: decode feed: %w", err)
	}

	topics := make([]string, 0, limit)
	for _, item := range doc.Channel.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		topics = append(topics, title)
		if len(topics) >= limit {
			break
		}
	}
	f.log.Info().Str("geo", f.geo).Int("topics", len(topics)).Msg("трендовые темы получены")
	return topics, nil
}
