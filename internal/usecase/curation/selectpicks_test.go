package curation

import (
	"fmt"
	"testing"

	"trenddrop/internal/domain"
)

func listingWithTopic(id, topic, seller string) domain.Listing {
	return domain.Listing{
		ID:             id,
		Title:          "Item " + id,
		URL:            "https://ebay.com/itm/" + id,
		Keyword:        topic,
		SellerUsername: seller,
		Price:          50,
	}
}

func TestSelectWithVarietyRespectsKeywordCap(t *testing.T) {
	var scored []domain.Listing
	for i := 0; i < 10; i++ {
		scored = append(scored, listingWithTopic(fmt.Sprintf("%d", i), "gadgets", "s"))
	}
	picks := SelectWithVariety(scored, 6, 2, 1)
	if len(picks) != 2 {
		t.Fatalf("ожидали 2 пика при одной теме и cap=2, получили %d", len(picks))
	}
	counts := make(map[string]int)
	for _, p := range picks {
		counts[TopicKey(p)]++
	}
	for k, c := range counts {
		if c > 2 {
			t.Fatalf("тема %q встречается %d раз при cap=2", k, c)
		}
	}
}

func TestSelectWithVarietyTwoTopicsCannotSatisfyUnique(t *testing.T) {
	// 10 кандидатов на 2 темы, limit=6, cap=2, min_unique=4:
	// 4 уникальные темы недостижимы, функция обязана завершиться и вернуть максимум 4 пика.
	var scored []domain.Listing
	for i := 0; i < 10; i++ {
		topic := "alpha"
		if i%2 == 1 {
			topic = "beta"
		}
		scored = append(scored, listingWithTopic(fmt.Sprintf("%d", i), topic, fmt.Sprintf("s%d", i)))
	}
	picks := SelectWithVariety(scored, 6, 2, 4)
	if len(picks) > 4 {
		t.Fatalf("при двух темах и cap=2 пиков не может быть больше 4, получили %d", len(picks))
	}
	counts := make(map[string]int)
	for _, p := range picks {
		counts[TopicKey(p)]++
	}
	for k, c := range counts {
		if c > 2 {
			t.Fatalf("тема %q превысила cap: %d", k, c)
		}
	}
}

func TestSelectWithVarietyBackfillSwapsInFreshTopic(t *testing.T) {
	scored := []domain.Listing{
		listingWithTopic("1", "alpha", "s1"),
		listingWithTopic("2", "alpha", "s2"),
		listingWithTopic("3", "beta", "s3"),
		listingWithTopic("4", "beta", "s4"),
		listingWithTopic("5", "gamma", "s5"),
	}
	picks := SelectWithVariety(scored, 4, 2, 3)
	topics := make(map[string]bool)
	for _, p := range picks {
		topics[TopicKey(p)] = true
	}
	if len(topics) < 3 {
		t.Fatalf("ожидали минимум 3 уникальные темы после обмена, получили %v", topics)
	}
	if len(picks) > 4 {
		t.Fatalf("limit нарушен: %d", len(picks))
	}
}

func TestSelectWithVarietyDegenerateInputs(t *testing.T) {
	if picks := SelectWithVariety(nil, 5, 2, 2); picks != nil {
		t.Fatalf("пустой вход должен давать пустой результат")
	}
	scored := []domain.Listing{listingWithTopic("1", "a", "s")}
	if picks := SelectWithVariety(scored, 0, 2, 2); picks != nil {
		t.Fatalf("limit=0 должен давать пустой результат")
	}
	if picks := SelectWithVariety(scored, -3, 2, 2); picks != nil {
		t.Fatalf("отрицательный limit должен давать пустой результат")
	}
}

func TestEnforceSellerDiversity(t *testing.T) {
	listings := []domain.Listing{
		listingWithTopic("1", "a", "seller1"),
		listingWithTopic("2", "b", "seller1"),
		listingWithTopic("3", "c", "seller2"),
		listingWithTopic("4", "d", ""),
		listingWithTopic("5", "e", ""),
	}
	// У карточек без имени ключ — хост URL, он у всех одинаковый.
	out := EnforceSellerDiversity(listings, 1)
	counts := make(map[string]int)
	for _, l := range out {
		counts[SellerKey(l)]++
	}
	for k, c := range counts {
		if c > 1 {
			t.Fatalf("продавец %q встречается %d раз при cap=1", k, c)
		}
	}
	if len(out) != 3 {
		t.Fatalf("ожидали 3 карточки (seller1, seller2, хост), получили %d", len(out))
	}
}

func TestTopUpPicksRespectsSellerCap(t *testing.T) {
	picks := []domain.Listing{listingWithTopic("1", "a", "seller1")}
	pool := []domain.Listing{
		listingWithTopic("1", "a", "seller1"),
		listingWithTopic("2", "b", "seller1"),
		listingWithTopic("3", "c", "seller2"),
		listingWithTopic("4", "d", "seller3"),
	}
	out := TopUpPicks(picks, pool, 3, 1)
	if len(out) != 3 {
		t.Fatalf("ожидали добор до 3, получили %d", len(out))
	}
	counts := make(map[string]int)
	for _, l := range out {
		counts[SellerKey(l)]++
	}
	if counts["seller1"] > 1 {
		t.Fatalf("добор нарушил ограничение на продавца")
	}
}
