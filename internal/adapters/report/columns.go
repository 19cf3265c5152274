// Package report рендерит отчётные пакеты: табличный PDF, CSV с тем же
// набором колонок и ZIP-архивы.
package report

import (
	"fmt"
	"strings"

	"trenddrop/internal/domain"
)

// Column описывает одну колонку отчёта.
type Column struct {
	Key   string
	Label string
}

// Колонки недельного отчёта. Provider добавляется в кросс-маркетных пакетах.
var (
	WeeklyColumns = []Column{
		{Key: "title", Label: "Title"},
		{Key: "price", Label: "Price"},
		{Key: "currency", Label: "Currency"},
		{Key: "seller_feedback", Label: "Seller FB"},
		{Key: "signals", Label: "Signals"},
	}

	MasterColumns = []Column{
		{Key: "title", Label: "Title"},
		{Key: "provider", Label: "Provider"},
		{Key: "price", Label: "Price"},
		{Key: "currency", Label: "Currency"},
		{Key: "seller_feedback", Label: "Seller FB"},
		{Key: "signals", Label: "Signals"},
	}
)

var bulletPrefixes = []string{"■", "▪", "•", "●", "◼", "◾", "▫", "◻"}

func stripLeadingBullet(text string) string {
	for _, bullet := range bulletPrefixes {
		if strings.HasPrefix(text, bullet) {
			return strings.TrimLeft(strings.TrimPrefix(text, bullet), " ")
		}
	}
	return text
}

// SellerFBStars переводит счётчик отзывов продавца в рейтинг 1–5 звёзд.
func SellerFBStars(feedback int) string {
	var n int
	switch {
	case feedback >= 100_000:
		n = 5
	case feedback >= 50_000:
		n = 4
	case feedback >= 10_000:
		n = 3
	case feedback >= 1_000:
		n = 2
	default:
		n = 1
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

func columnValue(l domain.Listing, key string) string {
	switch key {
	case "title":
		title := strings.TrimSpace(l.Title)
		if title == "" {
			title = strings.TrimSpace(l.Headline)
		}
		return stripLeadingBullet(title)
	case "provider":
		return providerLabel(l.Provider)
	case "price":
		return fmt.Sprintf("%.2f", l.Price)
	case "currency":
		if l.Currency == "" {
			return "USD"
		}
		return l.Currency
	case "seller_feedback":
		return SellerFBStars(l.SellerFeedback)
	case "signals":
		return fmt.Sprintf("%.2f", l.Signals)
	default:
		return ""
	}
}

func providerLabel(provider string) string {
	switch provider {
	case domain.ProviderEbay:
		return "eBay"
	case domain.ProviderAmazon:
		return "Amazon"
	case domain.ProviderAliexpress:
		return "AliExpress"
	case "":
		return ""
	default:
		return strings.ToUpper(provider[:1]) + provider[1:]
	}
}
