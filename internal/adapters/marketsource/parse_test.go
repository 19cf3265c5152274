package marketsource

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"19.99", 19.99},
		{"1,299.00", 1299},
		{"US $24.50", 24.5},
		{"", 0},
		{"нет цены", 0},
	}
	for _, c := range cases {
		if got := parsePrice(c.in); got != c.want {
			t.Errorf("parsePrice(%q) = %v, ожидалось %v", c.in, got, c.want)
		}
	}
}

func TestExtractRatingAndReviews(t *testing.T) {
	if got := extractRating("4.7 out of 5 stars"); got != 4.7 {
		t.Fatalf("рейтинг разобран неверно: %v", got)
	}
	if got := extractReviews("12,345 ratings"); got != 12345 {
		t.Fatalf("количество отзывов разобрано неверно: %v", got)
	}
	if got := extractReviews(""); got != 0 {
		t.Fatalf("пустая строка должна давать 0 отзывов, получено %v", got)
	}
}

func TestAmazonSignals(t *testing.T) {
	if got := amazonSignals(0, 100); got != 0 {
		t.Fatalf("нулевой рейтинг должен давать нулевой сигнал, получено %v", got)
	}
	small := amazonSignals(4.5, 10)
	big := amazonSignals(4.5, 100000)
	if big <= small {
		t.Fatalf("больше отзывов должно давать больший сигнал: %v <= %v", big, small)
	}
	if big > 4.5*6 {
		t.Fatalf("log10 должен гасить огромные SKU, получено %v", big)
	}
}

func TestNormalizeAliURL(t *testing.T) {
	cases := map[string]string{
		"//ae01.alicdn.com/kf/img.jpg":      "https://ae01.alicdn.com/kf/img.jpg",
		"/item/1005.html":                   "https://www.aliexpress.com/item/1005.html",
		"https://www.aliexpress.com/item/1": "https://www.aliexpress.com/item/1",
		"":                                  "",
	}
	for in, want := range cases {
		if got := normalizeAliURL(in); got != want {
			t.Errorf("normalizeAliURL(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}

func TestParseRunParams(t *testing.T) {
	page := `<html><script>window.runParams = {"mods":{"itemList":{"content":[
		{"title":"Smart Watch X","productDetailUrl":"//www.aliexpress.com/item/1.html","price":"US $24.99","imageUrl":"//img/1.jpg","sellerPositiveRate":"97.5","itemEvalScore":"4.8","superSupplier":true},
		{"title":"","productDetailUrl":"//www.aliexpress.com/item/2.html"},
		{"title":"LED Strip","productUrl":"/item/3.html","price":"1 200 руб","productPositiveRate":88}
	]}}};</script></html>`

	src := NewAliexpressSource(zerolog.Nop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	listings, total := src.parseRunParams(page, "smartwatch", 10, now)
	if total != 3 {
		t.Fatalf("ожидалось 3 элемента в payload, получено %d", total)
	}
	if len(listings) != 2 {
		t.Fatalf("строка без заголовка должна отбрасываться, получено %d карточек", len(listings))
	}
	first := listings[0]
	if first.URL != "https://www.aliexpress.com/item/1.html" {
		t.Fatalf("URL не нормализован: %q", first.URL)
	}
	if first.Price != 24.99 || first.Currency != "USD" {
		t.Fatalf("цена разобрана неверно: %v %s", first.Price, first.Currency)
	}
	if first.SellerFeedback != 97 || first.Signals != 4.8 || !first.TopRated {
		t.Fatalf("метрики продавца разобраны неверно: %+v", first)
	}
	if first.Provider != domain.ProviderAliexpress || first.Keyword != "smartwatch" {
		t.Fatalf("атрибуция источника неверна: %+v", first)
	}
	second := listings[1]
	if second.Currency != "RUB" {
		t.Fatalf("рублёвая цена должна давать RUB, получено %s", second.Currency)
	}
	if second.SellerFeedback != 88 {
		t.Fatalf("productPositiveRate должен идти в feedback, получено %d", second.SellerFeedback)
	}
}

func TestParseRunParamsErrorFields(t *testing.T) {
	page := `<script>window.runParams = {"mods":{"itemList":{"content":[]}},"resp_code":"FAIL_SYS_TOKEN"};</script>`
	fields := runParamsErrorFields(page)
	if fields["resp_code"] != "FAIL_SYS_TOKEN" {
		t.Fatalf("поле ошибки не извлечено: %v", fields)
	}
	if runParamsErrorFields(`<html></html>`) != nil {
		t.Fatalf("страница без runParams не должна давать ошибок")
	}
}

func TestParseAnchorCardsFallback(t *testing.T) {
	page := `<html><body>
		<a href="/item/7.html" title="USB Hub 7 in 1"><span class="item-price">$9.99</span><img src="//img/7.jpg"/></a>
		<a href="/item/8.html"></a>
	</body></html>`
	src := NewAliexpressSource(zerolog.Nop())
	listings := src.parseAnchorCards(page, "usb hub", 10, time.Now().UTC())
	if len(listings) != 1 {
		t.Fatalf("ссылка без заголовка должна отбрасываться, получено %d", len(listings))
	}
	l := listings[0]
	if l.URL != "https://www.aliexpress.com/item/7.html" || l.Price != 9.99 || l.ImageURL != "https://img/7.jpg" {
		t.Fatalf("карточка разобрана неверно: %+v", l)
	}
}
