package storefront

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trenddrop/internal/domain"
)

func TestWriteFeed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	w := NewFeedWriter(dir, "https://shop.example.com/r")

	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	listings := []domain.Listing{
		{Title: "Desk Lamp", URL: "https://www.ebay.com/itm/1", Price: 19.99, Currency: "USD", Provider: "ebay", Keyword: "desk lamp"},
		{Title: "No URL item", Price: 5, Currency: "USD", Provider: "ebay"},
	}
	if err := w.Write(listings, now); err != nil {
		t.Fatalf("запись фида не удалась: %v", err)
	}

	data, err := os.ReadFile(w.ProductsPath())
	if err != nil {
		t.Fatalf("фид не прочитан: %v", err)
	}
	var doc struct {
		UpdatedAt int64 `json:"updated_at"`
		Products  []struct {
			Title    string `json:"title"`
			ClickURL string `json:"click_url"`
		} `json:"products"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("фид не разбирается: %v", err)
	}
	if doc.UpdatedAt != now.Unix() {
		t.Fatalf("updated_at = %d, ожидалось %d", doc.UpdatedAt, now.Unix())
	}
	if len(doc.Products) != 2 {
		t.Fatalf("ожидалось 2 товара, получено %d", len(doc.Products))
	}
	want := "https://shop.example.com/r?url=https%3A%2F%2Fwww.ebay.com%2Fitm%2F1"
	if doc.Products[0].ClickURL != want {
		t.Fatalf("click_url = %q, ожидалось %q", doc.Products[0].ClickURL, want)
	}
	if doc.Products[1].ClickURL != "" {
		t.Fatalf("товар без URL не должен получать click_url: %q", doc.Products[1].ClickURL)
	}

	if _, err := os.Stat(w.ProductsPath() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("временный файл должен удаляться после rename")
	}
}

func TestWriteFeedOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewFeedWriter(dir, "")
	now := time.Now()
	if err := w.Write([]domain.Listing{{Title: "A", URL: "https://e.com/1"}}, now); err != nil {
		t.Fatalf("первая запись не удалась: %v", err)
	}
	if err := w.Write(nil, now); err != nil {
		t.Fatalf("повторная запись не удалась: %v", err)
	}
	data, _ := os.ReadFile(w.ProductsPath())
	var doc struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("фид не разбирается: %v", err)
	}
	if len(doc.Products) != 0 {
		t.Fatalf("пустой прогон должен очищать фид, получено %d товаров", len(doc.Products))
	}
}
