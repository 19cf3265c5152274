// Package storefront пишет JSON-фид витрины, который раздаёт cmd/api.
package storefront

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"trenddrop/internal/domain"
)

const productsFileName = "products.json"

// FeedWriter атомарно обновляет products.json в каталоге данных витрины.
type FeedWriter struct {
	dataDir           string
	clickRedirectBase string
}

// NewFeedWriter создаёт писатель фида. clickRedirectBase — базовый URL
// редиректа кликов; пустая строка отключает подмену ссылок.
func NewFeedWriter(dataDir, clickRedirectBase string) *FeedWriter {
	return &FeedWriter{dataDir: dataDir, clickRedirectBase: clickRedirectBase}
}

type feedProduct struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	ClickURL       string   `json:"click_url,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	Price          float64  `json:"price"`
	Currency       string   `json:"currency"`
	SellerFeedback int      `json:"seller_feedback"`
	TopRated       bool     `json:"top_rated"`
	Signals        float64  `json:"signals"`
	Provider       string   `json:"provider"`
	Keyword        string   `json:"keyword,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Headline       string   `json:"headline,omitempty"`
	Blurb          string   `json:"blurb,omitempty"`
	Emojis         string   `json:"emojis,omitempty"`
	Caption        string   `json:"caption,omitempty"`
}

type feedDocument struct {
	UpdatedAt int64         `json:"updated_at"`
	Products  []feedProduct `json:"products"`
}

// Write сохраняет фид: запись во временный файл и атомарный rename,
// чтобы витрина никогда не видела недописанный JSON.
func (w *FeedWriter) Write(listings []domain.Listing, now time.Time) error {
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return fmt.Errorf("storefront: create data dir: %w", err)
	}

	doc := feedDocument{
		UpdatedAt: now.Unix(),
		Products:  make([]feedProduct, 0, len(listings)),
	}
	for _, l := range listings {
		doc.Products = append(doc.Products, feedProduct{
			Title:          l.Title,
			URL:            l.URL,
			ClickURL:       w.clickURL(l),
			ImageURL:       l.ImageURL,
			Price:          l.Price,
			Currency:       l.Currency,
			SellerFeedback: l.SellerFeedback,
			TopRated:       l.TopRated,
			Signals:        l.Signals,
			Provider:       l.Provider,
			Keyword:        l.Keyword,
			Tags:           l.Tags,
			Headline:       l.Headline,
			Blurb:          l.Blurb,
			Emojis:         l.Emojis,
			Caption:        l.Caption,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("storefront: marshal feed: %w", err)
	}

	target := filepath.Join(w.dataDir, productsFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storefront: write feed: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("storefront: replace feed: %w", err)
	}
	return nil
}

// ProductsPath возвращает путь к файлу фида.
func (w *FeedWriter) ProductsPath() string {
	return filepath.Join(w.dataDir, productsFileName)
}

func (w *FeedWriter) clickURL(l domain.Listing) string {
	if l.ClickURL != "" {
		return l.ClickURL
	}
	if w.clickRedirectBase == "" || l.URL == "" {
		return ""
	}
	return w.clickRedirectBase + "?" + url.Values{"url": {l.URL}}.Encode()
}
