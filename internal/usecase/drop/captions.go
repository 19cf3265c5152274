package drop

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"trenddrop/internal/domain"
	"trenddrop/internal/usecase/curation"
)

// FreeSampleURL — публичная ссылка на бесплатный сэмпл-пакет.
const FreeSampleURL = "https://trenddropstudio.gumroad.com/l/free-sample"

const captionTitleMaxLen = 170

// FormatFeedbackNumber форматирует число отзывов продавца: 1.2M, 3.4k, 512.
func FormatFeedbackNumber(feedback int) string {
	if feedback < 0 {
		return ""
	}
	n := float64(feedback)
	if n >= 1_000_000 {
		return trimDecimal(fmt.Sprintf("%.1f", n/1_000_000)) + "M"
	}
	if n >= 1_000 {
		return trimDecimal(fmt.Sprintf("%.1f", n/1_000)) + "k"
	}
	return strconv.Itoa(feedback)
}

func trimDecimal(s string) string {
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// hookLines собирает продающие зацепки карточки: тип листинга, возвраты,
// бесплатная доставка и скорое окончание аукциона.
func hookLines(l domain.Listing, now time.Time) []string {
	var hooks []string
	if lt := curation.ListingType(l); lt != "" {
		hooks = append(hooks, "🛒 "+lt)
	}
	if l.ReturnsAccepted != nil && *l.ReturnsAccepted {
		hooks = append(hooks, "✅ Free returns")
	}
	if l.ShippingCost != nil && *l.ShippingCost <= 0.0001 {
		hooks = append(hooks, "🚚 Free shipping")
	}
	if end, ok := curation.ParseEndTime(l); ok {
		if end.Sub(now).Hours() <= 6.0 {
			hooks = append(hooks, "⏳ Ends soon")
		}
	}
	return hooks
}

// BuildProductCaption строит HTML-подпись карточки. Платный скоуп получает
// заголовок Member Pick, строку доверия и состояние товара; публичный короче.
func BuildProductCaption(l domain.Listing, scope string, now time.Time) string {
	title := html.EscapeString(capRunes(l.Title, captionTitleMaxLen))

	currency := l.Currency
	if currency == "" {
		currency = "USD"
	}
	priceText := fmt.Sprintf("%s %.2f", currency, l.Price)

	clickURL := l.ClickURL
	if clickURL == "" {
		clickURL = l.URL
	}

	hooks := hookLines(l, now)

	if scope == "paid" {
		body := []string{"💎 TrendDrop+ Member Pick", "<b>" + title + "</b>", "💰 " + priceText}
		if l.SellerFeedback > 0 {
			trust := "⭐ Seller feedback: " + FormatFeedbackNumber(l.SellerFeedback)
			if l.TopRated {
				trust += " · Top Rated"
			}
			body = append(body, trust)
		}
		if len(hooks) > 0 {
			body = append(body, strings.Join(hooks, "\n"))
		}
		if cond := strings.TrimSpace(l.Condition); cond != "" {
			body = append(body, "Condition: "+html.EscapeString(cond))
		}
		body = append(body, "", fmt.Sprintf("<a href=%q>🔗 Open listing</a>", clickURL))
		return strings.Join(body, "\n")
	}

	body := []string{"⚡ TRENDING NOW", "<b>" + title + "</b>", "💰 " + priceText}
	if len(hooks) > 0 {
		body = append(body, strings.Join(hooks, "\n"))
	}
	body = append(body, "", fmt.Sprintf("<a href=%q>🛒 View deal</a>", clickURL))
	return strings.Join(body, "\n")
}

// BuildCTAText строит призыв для реселлеров: бесплатный сэмпл и, если задана
// ссылка, платный полный пакет.
func BuildCTAText(gumroadURL string) string {
	lines := []string{
		"📦 <b>Flip-ready product list</b>",
		"If you resell on eBay / Facebook Marketplace / Amazon / TikTok Shop, grab the free sample pack (PDF + CSV).",
		"",
		fmt.Sprintf("✅ Free sample (5 items): <a href=%q>Download here</a>", FreeSampleURL),
	}
	if gumroadURL != "" {
		lines = append(lines, fmt.Sprintf("🔥 Full Top 50 pack: <a href=%q>Get it here</a>", gumroadURL))
	}
	lines = append(lines, "", "Tip: post the same-day items fast — speed is the edge.")
	return strings.Join(lines, "\n")
}

// CTAKey — ключ журнала публикаций для кулдауна призыва в рамках скоупа.
func CTAKey(scope string) string {
	return "CTA::" + scope
}

func capRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
