package curation

import (
	"strings"
	"testing"
	"time"

	"trenddrop/internal/domain"
)

func TestDedupeCollapsesSameTitleKey(t *testing.T) {
	listings := []domain.Listing{
		{Title: "Brand New Widget A", Source: "ebay", SellerUsername: "seller1", Signals: 5},
		{Title: "widget a (used)", Source: "ebay", SellerUsername: "seller1", Signals: 3},
		{Title: "Widget B", Source: "ebay", SellerUsername: "seller1", Signals: 8},
	}
	out := DedupeNearDuplicates(listings)
	if len(out) != 2 {
		t.Fatalf("ожидали 2 карточки, получили %d", len(out))
	}
	var widgetA, widgetB *domain.Listing
	for i := range out {
		switch CanonicalTitleKey(out[i].Title) {
		case "widget a":
			widgetA = &out[i]
		case "widget b":
			widgetB = &out[i]
		}
	}
	if widgetA == nil || widgetB == nil {
		t.Fatalf("не нашли ожидаемые группы в результате: %+v", out)
	}
	if widgetA.Signals != 5 {
		t.Fatalf("из группы widget a должна выжить карточка с signals=5, получили %v", widgetA.Signals)
	}
	if widgetB.Signals != 8 {
		t.Fatalf("widget b должен сохранить signals=8, получили %v", widgetB.Signals)
	}
}

func TestDedupeCardinalityAndUniqueness(t *testing.T) {
	listings := []domain.Listing{
		{Title: "Item One", Source: "ebay", SellerUsername: "a", Signals: 1},
		{Title: "Item One!!!", Source: "ebay", SellerUsername: "a", Signals: 2},
		{Title: "Item One", Source: "amazon", SellerUsername: "a", Signals: 3},
		{Title: "Item Two", Source: "ebay", SellerUsername: "b", Signals: 4},
	}
	out := DedupeNearDuplicates(listings)
	if len(out) > len(listings) {
		t.Fatalf("результат больше входа: %d > %d", len(out), len(listings))
	}
	seen := make(map[string]bool)
	for _, l := range out {
		key := strings.ToLower(l.Source) + "|" + SellerIdentifier(l) + "|" + CanonicalTitleKey(l.Title)
		if seen[key] {
			t.Fatalf("тройка %q встретилась дважды", key)
		}
		seen[key] = true
	}
}

func TestDedupeKeepsBestByRankKey(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	listings := []domain.Listing{
		{Title: "Same Thing", Source: "ebay", SellerUsername: "s", Signals: 2, SellerFeedback: 100, Price: 30, InsertedAt: base},
		{Title: "same thing", Source: "ebay", SellerUsername: "s", Signals: 2, SellerFeedback: 100, Price: 25, InsertedAt: base},
		{Title: "SAME THING", Source: "ebay", SellerUsername: "s", Signals: 2, SellerFeedback: 50, Price: 10, InsertedAt: base},
	}
	out := DedupeNearDuplicates(listings)
	if len(out) != 1 {
		t.Fatalf("ожидали 1 карточку, получили %d", len(out))
	}
	// Побеждает вторая: равные signals, равный feedback, но ниже цена.
	if out[0].Price != 25 {
		t.Fatalf("выжить должна карточка с ценой 25, получили %v", out[0].Price)
	}
}

func TestDedupeFirstEncounteredWinsOnFullTie(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	listings := []domain.Listing{
		{ID: "first", Title: "Tie Item", Source: "ebay", SellerUsername: "s", Signals: 1, Price: 20, InsertedAt: base},
		{ID: "second", Title: "tie item", Source: "ebay", SellerUsername: "s", Signals: 1, Price: 20, InsertedAt: base},
	}
	out := DedupeNearDuplicates(listings)
	if len(out) != 1 {
		t.Fatalf("ожидали 1 карточку, получили %d", len(out))
	}
	if out[0].ID != "first" {
		t.Fatalf("при полном равенстве должна выжить первая встреченная, получили %q", out[0].ID)
	}
}

func TestDedupeByURLKeepsEmptyURLs(t *testing.T) {
	listings := []domain.Listing{
		{Title: "a", URL: "https://ebay.com/itm/1"},
		{Title: "b", URL: "https://ebay.com/itm/1"},
		{Title: "c", URL: ""},
		{Title: "d", URL: ""},
	}
	out := DedupeByURL(listings)
	if len(out) != 3 {
		t.Fatalf("ожидали 3 карточки (1 дубликат URL, пустые не схлопываются), получили %d", len(out))
	}
}

func TestRankKeyCoercions(t *testing.T) {
	k := RankKeyFor(domain.Listing{Signals: -5, SellerFeedback: -1, Price: -10})
	if k.Signals != 0 || k.SellerFeedback != 0 || k.Price != 0 {
		t.Fatalf("отрицательные значения должны срезаться в 0: %+v", k)
	}
	unknown := RankKeyFor(domain.Listing{Signals: 1})
	known := RankKeyFor(domain.Listing{Signals: 1, InsertedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)})
	if unknown.Compare(known) >= 0 {
		t.Fatalf("карточка без времени вставки должна проигрывать тай-брейк свежести")
	}
}

func TestSortByRankDescending(t *testing.T) {
	listings := []domain.Listing{
		{Title: "low", Signals: 1},
		{Title: "high", Signals: 9},
		{Title: "mid", Signals: 5},
	}
	SortByRank(listings)
	if listings[0].Title != "high" || listings[2].Title != "low" {
		t.Fatalf("неверный порядок сортировки: %+v", listings)
	}
}
