package curation

import (
	"strings"

	"trenddrop/internal/domain"
)

// DedupeNearDuplicates схлопывает почти-дубликаты: карточки с одинаковой тройкой
// (источник, продавец, канонический ключ заголовка) считаются одним товаром,
// из группы выживает лучшая по ключу ранжирования. При полном равенстве ключей
// остаётся первая встреченная карточка: замена происходит только при строго
// большем ключе. Порядок результата не специфицирован — вызывающий сортирует сам.
func DedupeNearDuplicates(listings []domain.Listing) []domain.Listing {
	type bucket struct {
		listing domain.Listing
		rank    RankKey
	}
	buckets := make(map[string]*bucket, len(listings))
	order := make([]string, 0, len(listings))
	for _, l := range listings {
		source := strings.ToLower(l.Source)
		if source == "" {
			source = "unknown"
		}
		key := source + "|" + SellerIdentifier(l) + "|" + CanonicalTitleKey(l.Title)
		rank := RankKeyFor(l)
		best, ok := buckets[key]
		if !ok {
			buckets[key] = &bucket{listing: l, rank: rank}
			order = append(order, key)
			continue
		}
		if rank.Compare(best.rank) > 0 {
			best.listing = l
			best.rank = rank
		}
	}
	out := make([]domain.Listing, 0, len(buckets))
	for _, key := range order {
		out = append(out, buckets[key].listing)
	}
	return out
}

// DedupeByURL убирает точные повторы по сырому URL, сохраняя порядок.
// Карточки с пустым URL проходят без схлопывания: пустая идентичность —
// это «неизвестно», а не «дубликат всего пустого».
func DedupeByURL(listings []domain.Listing) []domain.Listing {
	seen := make(map[string]struct{}, len(listings))
	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		u := strings.TrimSpace(l.URL)
		if u == "" {
			out = append(out, l)
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, l)
	}
	return out
}
