// Package copywriter генерирует маркетинговый текст карточек: заголовок,
// короткое описание и эмодзи. Основной путь — LLM, запасной — детерминированные
// шаблоны.
package copywriter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"trenddrop/internal/domain"
)

const (
	headlineMaxLen = 90
	blurbMaxLen    = 240
	emojisMaxLen   = 16
)

var (
	hypeWordsRe    = regexp.MustCompile(`(?i)\b(New|Brand\s*New|Hot|Sale|4IN1|3IN1|2PCS|Lot|Bundle)\b`)
	multiSpacesRe  = regexp.MustCompile(`\s{2,}`)
	gamingKeywords = []string{"game", "gaming", "xbox", "ps5", "keyboard", "mouse"}
	fashionWords   = []string{"dress", "jacket", "sneaker", "fashion", "shirt", "jean"}
	homeKeywords   = []string{"sofa", "lamp", "home", "kitchen", "cook", "vacuum"}
)

// SimpleCopywriter строит копию без внешних вызовов: чистит заголовок от
// маркетингового мусора и подбирает эмодзи по категории.
type SimpleCopywriter struct{}

var _ domain.Copywriter = (*SimpleCopywriter)(nil)

// NewSimpleCopywriter создаёт детерминированный копирайтер.
func NewSimpleCopywriter() *SimpleCopywriter {
	return &SimpleCopywriter{}
}

// MarketingCopy генерирует заголовок, описание и эмодзи.
func (c *SimpleCopywriter) MarketingCopy(_ context.Context, listing domain.Listing) (domain.MarketingCopy, error) {
	return fallbackCopy(listing), nil
}

// Caption возвращает однострочную подпись для витрины.
func (c *SimpleCopywriter) Caption(listing domain.Listing) string {
	return fallbackCaption(listing)
}

func fallbackCaption(listing domain.Listing) string {
	title := strings.TrimSpace(listing.Title)
	if r := []rune(title); len(r) > 120 {
		title = string(r[:120])
	}
	currency := listing.Currency
	if currency == "" {
		currency = "USD"
	}
	return strings.TrimSpace(fmt.Sprintf("%s • %s %.2f", title, currency, listing.Price))
}

func fallbackCopy(listing domain.Listing) domain.MarketingCopy {
	rawTitle := strings.TrimSpace(listing.Title)

	headline := hypeWordsRe.ReplaceAllString(rawTitle, "")
	headline = strings.TrimSpace(multiSpacesRe.ReplaceAllString(headline, " "))
	if r := []rune(headline); len(r) > headlineMaxLen {
		headline = string(r[:headlineMaxLen])
	}

	emojis := categoryEmojis(rawTitle + " " + listing.Keyword)

	blurb := "Limited stock—grab it now!"
	if listing.Price > 0 {
		currency := listing.Currency
		if currency == "" {
			currency = "USD"
		}
		blurb = fmt.Sprintf("%s %.2f steal. %s", currency, listing.Price, blurb)
	}

	if lead := leadEmojis(emojis, 2); lead != "" {
		headline = lead + " " + headline
	}

	return domain.MarketingCopy{Headline: headline, Blurb: blurb, Emojis: emojis}
}

func categoryEmojis(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, gamingKeywords):
		return "🕹️🎮✨"
	case containsAny(lower, fashionWords):
		return "👗👟✨"
	case containsAny(lower, homeKeywords):
		return "🏠🛋️✨"
	default:
		return "🔥✨"
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func leadEmojis(emojis string, n int) string {
	r := []rune(emojis)
	if len(r) == 0 {
		return ""
	}
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
