package drop

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/usecase/curation"
)

var dropNow = time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

type stubListings struct {
	items []domain.Listing
}

func (s *stubListings) UpsertListings(context.Context, []domain.Listing) error { return nil }
func (s *stubListings) ListCleanListings(context.Context, []string, int) ([]domain.Listing, error) {
	return s.items, nil
}

type stubPosted struct {
	recent map[string]struct{}
	marked []domain.PostedItem
}

func (s *stubPosted) RecentKeys(context.Context, time.Duration) (map[string]struct{}, error) {
	if s.recent == nil {
		return map[string]struct{}{}, nil
	}
	return s.recent, nil
}

func (s *stubPosted) MarkPosted(_ context.Context, item domain.PostedItem) error {
	if item.URLKey == "" {
		return nil
	}
	s.marked = append(s.marked, item)
	return nil
}

type stubRuns struct {
	saved []domain.Run
}

func (s *stubRuns) SaveRun(_ context.Context, run domain.Run) error {
	s.saved = append(s.saved, run)
	return nil
}

func (s *stubRuns) ListRecentRuns(context.Context, int) ([]domain.Run, error) { return s.saved, nil }

type sentMessage struct {
	scope  string
	text   string
	photo  string
	pinned bool
}

type stubPublisher struct {
	sent []sentMessage
}

func (s *stubPublisher) SendText(scope, text string, _ bool) error {
	s.sent = append(s.sent, sentMessage{scope: scope, text: text})
	return nil
}

func (s *stubPublisher) SendPinnedText(scope, text string, _ bool) error {
	s.sent = append(s.sent, sentMessage{scope: scope, text: text, pinned: true})
	return nil
}

func (s *stubPublisher) SendPhoto(scope, imageURL, caption string) error {
	s.sent = append(s.sent, sentMessage{scope: scope, text: caption, photo: imageURL})
	return nil
}

func (s *stubPublisher) ctaCount() int {
	n := 0
	for _, m := range s.sent {
		if strings.HasPrefix(m.text, "📦") {
			n++
		}
	}
	return n
}

type stubStorefront struct {
	written []domain.Listing
}

func (s *stubStorefront) Write(listings []domain.Listing, _ time.Time) error {
	s.written = listings
	return nil
}

type stubCopywriter struct{}

func (stubCopywriter) MarketingCopy(_ context.Context, l domain.Listing) (domain.MarketingCopy, error) {
	return domain.MarketingCopy{Headline: "🔥 " + l.Title, Blurb: "blurb", Emojis: "🔥✨"}, nil
}

func (stubCopywriter) Caption(l domain.Listing) string { return l.Title }

func testService(listings *stubListings, posted *stubPosted, runs *stubRuns, pub *stubPublisher, store *stubStorefront, cfg Config) *Service {
	var storefront StorefrontWriter
	if store != nil {
		storefront = store
	}
	svc := NewService(listings, posted, runs, pub, stubCopywriter{}, nil, storefront, nil,
		domain.ClockFunc(func() time.Time { return dropNow }), cfg, zerolog.Nop())
	svc.sleep = func(time.Duration) {}
	return svc
}

func dropListing(n string, keyword, seller string) domain.Listing {
	return domain.Listing{
		Title:          "Retro Handheld Console " + n,
		URL:            "https://www.ebay.com/itm/" + n,
		Price:          60,
		Currency:       "USD",
		SellerUsername: seller,
		SellerFeedback: 5000,
		Signals:        5,
		Provider:       domain.ProviderEbay,
		Keyword:        keyword,
		Tags:           []string{keyword},
	}
}

func defaultCfg() Config {
	return Config{
		DedupeWindow:      48 * time.Hour,
		MaxPerKeyword:     2,
		MinUniqueKeywords: 1,
		MaxPerSeller:      2,
		CTAEveryN:         2,
		CTACooldown:       3 * time.Hour,
		PublishLimit:      5,
	}
}

func TestPublishSkipsRecentlyPosted(t *testing.T) {
	fresh := dropListing("1", "consoles", "seller1")
	stale := dropListing("2", "cameras", "seller2")
	staleKey := curation.DedupeKey(curation.CanonicalizeURL(stale.URL))

	posted := &stubPosted{recent: map[string]struct{}{staleKey: {}}}
	pub := &stubPublisher{}
	svc := testService(&stubListings{}, posted, &stubRuns{}, pub, nil, defaultCfg())

	published, err := svc.PublishListings(context.Background(), "public", []domain.Listing{fresh, stale}, 5)
	if err != nil {
		t.Fatalf("публикация не удалась: %v", err)
	}
	if len(published) != 1 || published[0].Keyword != "consoles" {
		t.Fatalf("должна публиковаться только свежая карточка: %+v", published)
	}
	if len(posted.marked) == 0 || posted.marked[0].URLKey != published[0].URLKey {
		t.Fatalf("публикация должна отмечаться в журнале: %+v", posted.marked)
	}
}

func TestPublishRejectsByHardFilters(t *testing.T) {
	junk := dropListing("3", "parts", "seller3")
	junk.Title = "Broken console for parts"

	pub := &stubPublisher{}
	svc := testService(&stubListings{}, &stubPosted{}, &stubRuns{}, pub, nil, defaultCfg())

	published, err := svc.PublishListings(context.Background(), "public", []domain.Listing{junk}, 5)
	if err != nil {
		t.Fatalf("публикация не удалась: %v", err)
	}
	if len(published) != 0 {
		t.Fatalf("мусорная карточка не должна публиковаться: %+v", published)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("сообщений быть не должно: %+v", pub.sent)
	}
}

func TestPublishSendsCTAOncePerCooldown(t *testing.T) {
	products := []domain.Listing{
		dropListing("10", "consoles", "seller1"),
		dropListing("11", "cameras", "seller2"),
		dropListing("12", "lamps", "seller3"),
		dropListing("13", "fans", "seller4"),
	}
	posted := &stubPosted{}
	pub := &stubPublisher{}
	svc := testService(&stubListings{}, posted, &stubRuns{}, pub, nil, defaultCfg())

	published, err := svc.PublishListings(context.Background(), "public", products, 4)
	if err != nil {
		t.Fatalf("публикация не удалась: %v", err)
	}
	if len(published) != 4 {
		t.Fatalf("ожидалось 4 публикации, получено %d", len(published))
	}
	if got := pub.ctaCount(); got != 1 {
		t.Fatalf("CTA должен уходить один раз за кулдаун, получено %d", got)
	}

	ctaMarked := false
	for _, item := range posted.marked {
		if item.URLKey == CTAKey("public") {
			ctaMarked = true
		}
	}
	if !ctaMarked {
		t.Fatal("отправка CTA должна фиксироваться в журнале")
	}
}

func TestPublishPinsCTAWhenConfigured(t *testing.T) {
	cfg := defaultCfg()
	cfg.PinCTA = true
	pub := &stubPublisher{}
	svc := testService(&stubListings{}, &stubPosted{}, &stubRuns{}, pub, nil, cfg)

	products := []domain.Listing{
		dropListing("40", "consoles", "seller1"),
		dropListing("41", "cameras", "seller2"),
	}
	if _, err := svc.PublishListings(context.Background(), "public", products, 2); err != nil {
		t.Fatalf("публикация не удалась: %v", err)
	}

	ctaSeen := false
	for _, m := range pub.sent {
		isCTA := strings.HasPrefix(m.text, "📦")
		if isCTA {
			ctaSeen = true
		}
		if isCTA && !m.pinned {
			t.Fatalf("CTA должен закрепляться: %+v", m)
		}
		if !isCTA && m.pinned {
			t.Fatalf("обычная карточка закрепляться не должна: %+v", m)
		}
	}
	if !ctaSeen {
		t.Fatal("CTA не отправлен")
	}
}

func TestPublishSuppressesCTAAfterRecentSend(t *testing.T) {
	posted := &stubPosted{recent: map[string]struct{}{CTAKey("public"): {}}}
	pub := &stubPublisher{}
	svc := testService(&stubListings{}, posted, &stubRuns{}, pub, nil, defaultCfg())

	products := []domain.Listing{
		dropListing("20", "consoles", "seller1"),
		dropListing("21", "cameras", "seller2"),
	}
	if _, err := svc.PublishListings(context.Background(), "public", products, 2); err != nil {
		t.Fatalf("публикация не удалась: %v", err)
	}
	if got := pub.ctaCount(); got != 0 {
		t.Fatalf("недавний CTA должен подавлять повтор, получено %d", got)
	}
}

func TestRunSavesSummaryAndUpdatesStorefront(t *testing.T) {
	listings := &stubListings{items: []domain.Listing{
		dropListing("30", "consoles", "seller1"),
		dropListing("31", "cameras", "seller2"),
	}}
	runs := &stubRuns{}
	store := &stubStorefront{}
	svc := testService(listings, &stubPosted{}, runs, &stubPublisher{}, store, defaultCfg())

	run, err := svc.Run(context.Background(), domain.DropJob{Scope: "broadcast"})
	if err != nil {
		t.Fatalf("прогон не удался: %v", err)
	}
	if run.Status != "success" || run.ItemCount != 2 || run.TopicCount != 2 {
		t.Fatalf("итог прогона неверен: %+v", run)
	}
	if len(runs.saved) != 1 {
		t.Fatalf("итог должен сохраняться: %+v", runs.saved)
	}
	if len(store.written) != 2 {
		t.Fatalf("витрина должна обновляться публикациями: %d", len(store.written))
	}
	if store.written[0].Headline == "" || store.written[0].Caption == "" {
		t.Fatalf("карточки витрины должны обогащаться копирайтером: %+v", store.written[0])
	}
}

func TestRunUsesJobPicksAsLimit(t *testing.T) {
	listings := &stubListings{items: []domain.Listing{
		dropListing("50", "consoles", "seller1"),
		dropListing("51", "cameras", "seller2"),
		dropListing("52", "lamps", "seller3"),
	}}
	svc := testService(listings, &stubPosted{}, &stubRuns{}, &stubPublisher{}, nil, defaultCfg())

	run, err := svc.Run(context.Background(), domain.DropJob{Picks: 1})
	if err != nil {
		t.Fatalf("прогон не удался: %v", err)
	}
	if run.ItemCount != 1 {
		t.Fatalf("Picks должен ограничивать подборку: %+v", run)
	}
}

func TestRunWithEmptyStorage(t *testing.T) {
	runs := &stubRuns{}
	svc := testService(&stubListings{}, &stubPosted{}, runs, &stubPublisher{}, nil, defaultCfg())

	run, err := svc.Run(context.Background(), domain.DropJob{})
	if err != nil {
		t.Fatalf("пустое хранилище не должно давать ошибку: %v", err)
	}
	if run.Status != "empty" {
		t.Fatalf("ожидался статус empty: %+v", run)
	}
	if len(runs.saved) != 1 {
		t.Fatal("пустой прогон тоже должен фиксироваться")
	}
}
