package curation

import (
	"testing"
	"time"

	"trenddrop/internal/domain"
)

var scoreNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func TestHardFiltersReasons(t *testing.T) {
	cases := []struct {
		name    string
		listing domain.Listing
		ok      bool
		reason  string
	}{
		{"пустой заголовок", domain.Listing{Price: 50}, false, ReasonMissingTitle},
		{"запчасти", domain.Listing{Title: "iPhone 11 for parts only", Price: 50}, false, ReasonBadTitle},
		{"залоченный", domain.Listing{Title: "Samsung S21 icloud locked", Price: 50}, false, ReasonBadTitle},
		{"нулевая цена", domain.Listing{Title: "Nice Gadget", Price: 0}, false, ReasonBadPrice},
		{"слишком дешёвый", domain.Listing{Title: "Nice Gadget", Price: 3}, false, ReasonTooCheap},
		{"нормальный", domain.Listing{Title: "Nice Gadget", Price: 40}, true, ReasonOK},
	}
	for _, tc := range cases {
		ok, reason := PassesHardFilters(tc.listing)
		if ok != tc.ok || reason != tc.reason {
			t.Fatalf("%s: ожидали (%v, %s), получили (%v, %s)", tc.name, tc.ok, tc.reason, ok, reason)
		}
	}
}

func TestHardFiltersDeterministic(t *testing.T) {
	l := domain.Listing{Title: "Lot of 10 cables", Price: 25}
	ok1, r1 := PassesHardFilters(l)
	ok2, r2 := PassesHardFilters(l)
	if ok1 != ok2 || r1 != r2 {
		t.Fatalf("фильтр недетерминирован: (%v,%s) vs (%v,%s)", ok1, r1, ok2, r2)
	}
}

func TestConversionScoreSentinelOnZeroPrice(t *testing.T) {
	l := domain.Listing{Title: "Great Item", Price: 0, SellerFeedback: 100000, TopRated: true, Signals: 12}
	score := ConversionScore(l, scoreNow)
	if score > -1e8 {
		t.Fatalf("ожидали сентинел <= -1e8, получили %v", score)
	}
}

func TestConversionScoreTrustAndPriceBand(t *testing.T) {
	sweet := domain.Listing{Title: "Retro Handheld Console", Price: 60, SellerFeedback: 5000}
	cheap := domain.Listing{Title: "Retro Handheld Console", Price: 8, SellerFeedback: 5000}
	if ConversionScore(sweet, scoreNow) <= ConversionScore(cheap, scoreNow) {
		t.Fatalf("средний ценовой диапазон должен выигрывать у дешёвого")
	}

	trusted := domain.Listing{Title: "Retro Handheld Console", Price: 60, SellerFeedback: 5000}
	fresh := domain.Listing{Title: "Retro Handheld Console", Price: 60, SellerFeedback: 3}
	if ConversionScore(trusted, scoreNow) <= ConversionScore(fresh, scoreNow) {
		t.Fatalf("продавец с большим рейтингом должен выигрывать")
	}

	topRated := domain.Listing{Title: "Retro Handheld Console", Price: 60, SellerFeedback: 500, TopRated: true}
	plain := domain.Listing{Title: "Retro Handheld Console", Price: 60, SellerFeedback: 500}
	if ConversionScore(topRated, scoreNow) <= ConversionScore(plain, scoreNow) {
		t.Fatalf("top rated должен давать бонус")
	}
}

func TestConversionScoreUrgency(t *testing.T) {
	endingSoon := domain.Listing{
		Title: "Vintage Camera", Price: 80, SellerFeedback: 100,
		EndTime: scoreNow.Add(90 * time.Minute).Format(time.RFC3339),
	}
	endingLater := domain.Listing{
		Title: "Vintage Camera", Price: 80, SellerFeedback: 100,
		EndTime: scoreNow.Add(48 * time.Hour).Format(time.RFC3339),
	}
	noEnd := domain.Listing{Title: "Vintage Camera", Price: 80, SellerFeedback: 100}

	soonScore := ConversionScore(endingSoon, scoreNow)
	laterScore := ConversionScore(endingLater, scoreNow)
	noEndScore := ConversionScore(noEnd, scoreNow)
	if soonScore <= laterScore {
		t.Fatalf("аукцион, заканчивающийся скоро, должен получать бонус: %v <= %v", soonScore, laterScore)
	}
	if laterScore != noEndScore {
		t.Fatalf("окончание дальше суток не должно давать бонуса: %v != %v", laterScore, noEndScore)
	}
}

func TestConversionScoreLowConversionPenalty(t *testing.T) {
	commodity := domain.Listing{Title: "USB-C charger cable", Price: 20, SellerFeedback: 100}
	normal := domain.Listing{Title: "Mechanical keyboard", Price: 20, SellerFeedback: 100}
	// Вычитаем тай-брейк, чтобы сравнивать чистые слагаемые.
	cScore := ConversionScore(commodity, scoreNow) - titleTieBreak(CanonicalTitleKey(commodity.Title))
	nScore := ConversionScore(normal, scoreNow) - titleTieBreak(CanonicalTitleKey(normal.Title))
	if nScore-cScore < 1.3 {
		t.Fatalf("штраф за низкую конверсию не применился: %v vs %v", cScore, nScore)
	}
}

func TestConversionScoreDeterministic(t *testing.T) {
	l := domain.Listing{Title: "Rare Lego Set 10300", Price: 110, SellerFeedback: 2500, Signals: 6}
	if ConversionScore(l, scoreNow) != ConversionScore(l, scoreNow) {
		t.Fatalf("скор недетерминирован")
	}
}

func TestParseEndTimeFormats(t *testing.T) {
	unix := domain.Listing{EndTime: "1769904000"}
	if _, ok := ParseEndTime(unix); !ok {
		t.Fatalf("unix-секунды должны разбираться")
	}
	iso := domain.Listing{EndTime: "2026-02-01T18:00:00Z"}
	parsed, ok := ParseEndTime(iso)
	if !ok || parsed.Hour() != 18 {
		t.Fatalf("ISO-строка должна разбираться: %v %v", parsed, ok)
	}
	if _, ok := ParseEndTime(domain.Listing{EndTime: "мусор"}); ok {
		t.Fatalf("мусор не должен разбираться")
	}
	if _, ok := ParseEndTime(domain.Listing{}); ok {
		t.Fatalf("пустое время не должно разбираться")
	}
}

func TestListingType(t *testing.T) {
	auction := domain.Listing{BuyingOptions: []string{"AUCTION"}}
	if got := ListingType(auction); got != "Auction" {
		t.Fatalf("ожидали Auction, получили %q", got)
	}
	bin := domain.Listing{BuyingOptions: []string{"FIXED_PRICE"}}
	if got := ListingType(bin); got != "Buy It Now" {
		t.Fatalf("ожидали Buy It Now, получили %q", got)
	}
	if got := ListingType(domain.Listing{}); got != "" {
		t.Fatalf("ожидали пустой тип, получили %q", got)
	}
}
