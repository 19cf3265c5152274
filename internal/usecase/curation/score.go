package curation

import (
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"trenddrop/internal/domain"
)

// Коды причин отказа жёстких фильтров.
const (
	ReasonOK           = "ok"
	ReasonMissingTitle = "missing_title"
	ReasonBadTitle     = "bad_title"
	ReasonBadPrice     = "bad_price"
	ReasonTooCheap     = "too_cheap"
)

// RejectedScore — сентинел «никогда не публиковать» для отклонённых карточек.
const RejectedScore = -1e9

// Жёсткие фильтры: мусорные заголовки, сжигающие клики.
var badTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(parts|for parts|broken|repair|spares|untested|read description)\b`),
	regexp.MustCompile(`\b(ic lock|icloud|mdm|google lock|locked)\b`),
	regexp.MustCompile(`\b(case only|box only|empty box|manual only)\b`),
	regexp.MustCompile(`\b(lot of|bulk|wholesale|bundle of)\b`),
	regexp.MustCompile(`\b(digital code|account|subscription)\b`),
}

// Мягкий штраф: категории с низкой конверсией (клики из любопытства).
var lowConversionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(charger|charging|usb[- ]?c|cable|adapter|case|screen protector)\b`),
}

const minViablePrice = 6.0

// PassesHardFilters проверяет карточку перед скорингом дистрибуции.
// Возвращает признак допуска и код причины; никогда не ошибается.
func PassesHardFilters(l domain.Listing) (bool, string) {
	title := strings.ToLower(strings.TrimSpace(l.Title))
	if title == "" {
		return false, ReasonMissingTitle
	}
	for _, pat := range badTitlePatterns {
		if pat.MatchString(title) {
			return false, ReasonBadTitle
		}
	}
	if l.Price <= 0 {
		return false, ReasonBadPrice
	}
	if l.Price < minViablePrice {
		return false, ReasonTooCheap
	}
	return true, ReasonOK
}

// ConversionScore — скор дистрибуции, настроенный на первые конверсии:
// доверие к продавцу, ценовой диапазон, срочность аукциона, штраф за
// низкоконверсионные ключевые слова и ограниченный вклад внешних сигналов.
// Отклонённые фильтрами карточки получают RejectedScore.
func ConversionScore(l domain.Listing, now time.Time) float64 {
	if ok, _ := PassesHardFilters(l); !ok {
		return RejectedScore
	}

	titleLower := strings.ToLower(l.Title)

	// Доверие: логарифмическая кривая, 500 отзывов — сильно, 5000 — сильнее, но без взрыва.
	fb := l.SellerFeedback
	if fb < 0 {
		fb = 0
	}
	trust := math.Log1p(float64(fb))
	if l.TopRated {
		trust += 1.2
	}

	// Ценовой диапазон: импульсная, но осмысленная покупка конвертирует лучше всего.
	var priceFit float64
	switch {
	case l.Price >= 15 && l.Price <= 120:
		priceFit = 2.4
	case l.Price > 120 && l.Price <= 250:
		priceFit = 1.4
	case l.Price >= minViablePrice && l.Price < 15:
		priceFit = 0.6
	default:
		priceFit = 0.2
	}

	// Срочность: аукционы, заканчивающиеся скоро, подталкивают к покупке.
	var urgency float64
	if endTS, ok := ParseEndTime(l); ok {
		hrsLeft := endTS.Sub(now).Hours()
		if hrsLeft < 0 {
			hrsLeft = 0
		}
		switch {
		case hrsLeft <= 2:
			urgency = 2.3
		case hrsLeft <= 6:
			urgency = 1.4
		case hrsLeft <= 24:
			urgency = 0.6
		}
	}

	var lowConvPenalty float64
	for _, pat := range lowConversionPatterns {
		if pat.MatchString(titleLower) {
			lowConvPenalty = -1.4
			break
		}
	}

	// Вклад внешних сигналов ограничен, чтобы не доминировать над остальным.
	sig := l.Signals
	if sig < 0 {
		sig = 0
	}
	if sig > 12 {
		sig = 12
	}
	sigTerm := sig * 0.22

	score := trust*0.85 + priceFit + urgency + sigTerm + lowConvPenalty

	// Стабильный микро-сдвиг от ключа заголовка, чтобы равные по скору карточки
	// упорядочивались одинаково от прогона к прогону.
	if ck := CanonicalTitleKey(l.Title); ck != "" {
		score += titleTieBreak(ck)
	}
	return score
}

func titleTieBreak(titleKey string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(titleKey))
	return float64(h.Sum32()%100) / 10000.0
}

// ParseEndTime разбирает время окончания аукциона: unix-секунды или ISO/RFC3339.
func ParseEndTime(l domain.Listing) (time.Time, bool) {
	raw := strings.TrimSpace(l.EndTime)
	if raw == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC(), true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z07:00", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ListingType выводит тип листинга из опций покупки: "Auction", "Buy It Now" или пусто.
func ListingType(l domain.Listing) string {
	joined := strings.ToLower(strings.Join(l.BuyingOptions, ","))
	if strings.Contains(joined, "auction") {
		return "Auction"
	}
	if strings.Contains(joined, "fixed") || strings.Contains(joined, "buy_it_now") || strings.Contains(joined, "buynow") || strings.Contains(joined, "now") {
		return "Buy It Now"
	}
	return ""
}
