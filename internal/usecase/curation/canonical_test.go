package curation

import (
	"testing"

	"trenddrop/internal/domain"
)

func TestCanonicalTitleKeyStripsConditionWords(t *testing.T) {
	got := CanonicalTitleKey("Brand New Widget A (Like New!)")
	if got != "widget a" {
		t.Fatalf("ожидали 'widget a', получили %q", got)
	}
}

func TestCanonicalTitleKeyDeterministic(t *testing.T) {
	raw := "  USED iPhone 12 — Very Good Condition  "
	first := CanonicalTitleKey(raw)
	second := CanonicalTitleKey(raw)
	if first != second {
		t.Fatalf("ключ нестабилен: %q != %q", first, second)
	}
	if first == "" {
		t.Fatalf("не ожидали пустой ключ")
	}
}

func TestCanonicalTitleKeyEmpty(t *testing.T) {
	if got := CanonicalTitleKey(""); got != "" {
		t.Fatalf("пустой заголовок должен давать пустой ключ, получили %q", got)
	}
}

func TestCanonicalizeURLDropsQueryAndFragment(t *testing.T) {
	got := CanonicalizeURL("https://WWW.Ebay.com/itm/12345?mkcid=1&campid=777#top")
	if got != "https://www.ebay.com/itm/12345" {
		t.Fatalf("неверная каноникализация: %q", got)
	}
}

func TestCanonicalizeURLDefaultScheme(t *testing.T) {
	got := CanonicalizeURL("ebay.com/itm/1")
	if got != "https://ebay.com/itm/1" {
		t.Fatalf("ожидали схему https по умолчанию, получили %q", got)
	}
}

func TestCanonicalizeURLUnparseable(t *testing.T) {
	raw := "  ht tp://%%%bad  "
	if got := CanonicalizeURL(raw); got != "ht tp://%%%bad" {
		t.Fatalf("неразборчивый URL должен возвращаться обрезанным, получили %q", got)
	}
}

func TestDedupeKeyEmptyNeverMatches(t *testing.T) {
	if DedupeKey("") != "" {
		t.Fatalf("пустой канонический URL должен давать пустой ключ")
	}
	a := DedupeKey("https://ebay.com/itm/1")
	b := DedupeKey("https://ebay.com/itm/2")
	if a == b {
		t.Fatalf("разные URL не должны давать одинаковый ключ")
	}
	if a == "" || b == "" {
		t.Fatalf("непустой URL должен давать непустой ключ")
	}
}

func TestSellerKeyFallbacks(t *testing.T) {
	withName := domain.Listing{SellerUsername: "GadgetKing", URL: "https://ebay.com/itm/1"}
	if got := SellerKey(withName); got != "gadgetking" {
		t.Fatalf("ожидали имя продавца, получили %q", got)
	}
	byHost := domain.Listing{URL: "https://www.Ebay.com/itm/1"}
	if got := SellerKey(byHost); got != "www.ebay.com" {
		t.Fatalf("ожидали хост, получили %q", got)
	}
	unknown := domain.Listing{}
	if got := SellerKey(unknown); got != "unknown" {
		t.Fatalf("ожидали unknown, получили %q", got)
	}
}

func TestTopicKeyFallbacks(t *testing.T) {
	if got := TopicKey(domain.Listing{Keyword: "Retro Console"}); got != "retro console" {
		t.Fatalf("ожидали keyword, получили %q", got)
	}
	if got := TopicKey(domain.Listing{Tags: []string{"Gaming"}}); got != "gaming" {
		t.Fatalf("ожидали первый тег, получили %q", got)
	}
	if got := TopicKey(domain.Listing{}); got != "other" {
		t.Fatalf("ожидали other, получили %q", got)
	}
}
