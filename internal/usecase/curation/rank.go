package curation

import (
	"sort"
	"time"

	"trenddrop/internal/domain"
)

// RankKey — кортеж глобального ранжирования каталога:
// signals DESC, seller feedback DESC, price ASC, recency DESC.
type RankKey struct {
	Signals        float64
	SellerFeedback float64
	Price          float64
	InsertedAt     time.Time
}

// RankKeyFor строит ключ ранжирования карточки. Функция тотальна:
// отрицательные значения срезаются в 0, нулевое время вставки проигрывает
// любому известному времени.
func RankKeyFor(l domain.Listing) RankKey {
	k := RankKey{
		Signals:        l.Signals,
		SellerFeedback: float64(l.SellerFeedback),
		Price:          l.Price,
		InsertedAt:     l.InsertedAt,
	}
	if k.Signals < 0 {
		k.Signals = 0
	}
	if k.SellerFeedback < 0 {
		k.SellerFeedback = 0
	}
	if k.Price < 0 {
		k.Price = 0
	}
	return k
}

// Compare сравнивает ключи лексикографически: 1 если a лучше b, -1 если хуже, 0 при равенстве.
func (a RankKey) Compare(b RankKey) int {
	switch {
	case a.Signals > b.Signals:
		return 1
	case a.Signals < b.Signals:
		return -1
	}
	switch {
	case a.SellerFeedback > b.SellerFeedback:
		return 1
	case a.SellerFeedback < b.SellerFeedback:
		return -1
	}
	// Меньшая цена выигрывает.
	switch {
	case a.Price < b.Price:
		return 1
	case a.Price > b.Price:
		return -1
	}
	switch {
	case a.InsertedAt.After(b.InsertedAt):
		return 1
	case a.InsertedAt.Before(b.InsertedAt):
		return -1
	}
	return 0
}

// SortByRank сортирует карточки по убыванию ключа ранжирования. Сортировка стабильна.
func SortByRank(listings []domain.Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		return RankKeyFor(listings[i]).Compare(RankKeyFor(listings[j])) > 0
	})
}
