package epn

import (
	"net/url"
	"strings"
	"testing"
)

func TestWrapAddsTrackingParams(t *testing.T) {
	w := NewWrapper("533211234567")
	got := w.Wrap("https://www.ebay.com/itm/123?hash=abc", "drop")

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("обёрнутый URL не разбирается: %v", err)
	}
	q := u.Query()
	checks := map[string]string{
		"mkcid":    "1",
		"mkrid":    "711-53200-19255-0",
		"mkevt":    "1",
		"campid":   "533211234567",
		"customid": "drop",
		"toolid":   "10001",
		"hash":     "abc",
	}
	for key, want := range checks {
		if q.Get(key) != want {
			t.Errorf("параметр %s = %q, ожидалось %q", key, q.Get(key), want)
		}
	}
}

func TestWrapWithoutCampaignReturnsUnchanged(t *testing.T) {
	w := NewWrapper("")
	in := "https://www.ebay.com/itm/123?hash=abc"
	if got := w.Wrap(in, "drop"); got != in {
		t.Fatalf("без кампании URL должен оставаться прежним: %q", got)
	}
}

func TestWrapCustomIDDefaultAndCap(t *testing.T) {
	w := NewWrapper("camp")

	got := w.Wrap("https://www.ebay.com/itm/1", "")
	if !strings.Contains(got, "customid=trenddrop") {
		t.Fatalf("пустой customid должен заменяться дефолтом: %q", got)
	}

	long := strings.Repeat("x", 100)
	got = w.Wrap("https://www.ebay.com/itm/1", long)
	u, _ := url.Parse(got)
	if len(u.Query().Get("customid")) != 64 {
		t.Fatalf("customid должен обрезаться до 64 символов, получено %d", len(u.Query().Get("customid")))
	}
}

func TestWrapUnparseableURL(t *testing.T) {
	w := NewWrapper("camp")
	in := "http://%zz"
	if got := w.Wrap(in, ""); got != in {
		t.Fatalf("неразбираемый URL должен возвращаться как есть: %q", got)
	}
}
