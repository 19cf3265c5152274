package scrape

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
	"trenddrop/internal/usecase/trends"
)

var scrapeNow = time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

type stubTopics struct{ topics []string }

func (s *stubTopics) TrendingTopics(context.Context, int) ([]string, error) {
	return s.topics, nil
}

type stubSource struct {
	provider string
	queries  []string
	items    []domain.Listing
}

func (s *stubSource) Provider() string { return s.provider }
func (s *stubSource) Search(_ context.Context, query string, _ int) ([]domain.Listing, error) {
	s.queries = append(s.queries, query)
	return s.items, nil
}

type stubListings struct {
	upserted []domain.Listing
}

func (s *stubListings) UpsertListings(_ context.Context, listings []domain.Listing) error {
	s.upserted = append(s.upserted, listings...)
	return nil
}

func (s *stubListings) ListCleanListings(context.Context, []string, int) ([]domain.Listing, error) {
	return nil, nil
}

type stubDrop struct {
	jobs []domain.DropJob
}

func (s *stubDrop) Run(_ context.Context, job domain.DropJob) (domain.Run, error) {
	s.jobs = append(s.jobs, job)
	return domain.Run{Status: "success"}, nil
}

type stubAffiliate struct{}

func (stubAffiliate) Wrap(rawURL, customID string) string {
	return rawURL + "?customid=" + customID
}

func testScrape(source *stubSource, listings *stubListings, dropRunner *stubDrop) *Service {
	trendsSvc := trends.NewService(&stubTopics{topics: []string{"retro consoles"}}, "", zerolog.Nop())
	svc := NewService(trendsSvc, []domain.MarketSource{source}, listings, stubAffiliate{}, dropRunner,
		domain.ClockFunc(func() time.Time { return scrapeNow }),
		Config{TopicsLimit: 1, VariantsPerTopic: 2, PerPage: 10}, zerolog.Nop())
	svc.sleep = func(time.Duration) {}
	return svc
}

func TestRunUpsertsAndPublishes(t *testing.T) {
	source := &stubSource{
		provider: domain.ProviderEbay,
		items: []domain.Listing{{
			Title:          "Retro Handheld Console",
			URL:            "https://www.ebay.com/itm/1",
			Price:          60,
			Provider:       domain.ProviderEbay,
			SellerFeedback: 3000,
			TopRated:       true,
		}},
	}
	listings := &stubListings{}
	dropRunner := &stubDrop{}
	svc := testScrape(source, listings, dropRunner)

	job := domain.DropJob{Scope: "public"}
	run, err := svc.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("скрейп не удался: %v", err)
	}
	if run.Status != "success" {
		t.Fatalf("итог прогона неверен: %+v", run)
	}
	if len(source.queries) < 2 {
		t.Fatalf("каждый вариант запроса должен искаться: %v", source.queries)
	}
	if len(listings.upserted) == 0 {
		t.Fatal("найденные карточки должны сохраняться")
	}
	if len(dropRunner.jobs) != 1 || dropRunner.jobs[0].Scope != "public" {
		t.Fatalf("публикация должна запускаться с той же задачей: %+v", dropRunner.jobs)
	}

	first := listings.upserted[0]
	if first.Signals == 0 {
		t.Fatalf("карточка eBay должна получать синтетический сигнал: %+v", first)
	}
	if first.ClickURL == "" || first.Keyword == "" {
		t.Fatalf("карточка должна обогащаться ссылкой и запросом: %+v", first)
	}
	if len(first.Tags) == 0 || first.Tags[0] != "retro consoles" {
		t.Fatalf("тема должна попадать в теги: %+v", first.Tags)
	}
}

func TestRunLeavesScrapeCounterToSources(t *testing.T) {
	source := &stubSource{
		provider: domain.ProviderEbay,
		items:    []domain.Listing{{Title: "Desk Lamp", URL: "https://www.ebay.com/itm/2", Price: 20}},
	}
	svc := testScrape(source, &stubListings{}, &stubDrop{})

	counter := metrics.ListingsScraped.WithLabelValues(domain.ProviderEbay)
	before := testutil.ToFloat64(counter)
	if _, err := svc.Run(context.Background(), domain.DropJob{}); err != nil {
		t.Fatalf("скрейп не удался: %v", err)
	}
	// Счётчик ведут адаптеры источников; сервис не должен считать повторно.
	if got := testutil.ToFloat64(counter); got != before {
		t.Fatalf("listings_scraped_total изменился в сервисе: %f -> %f", before, got)
	}
}

func TestRunFillsDefaultPicks(t *testing.T) {
	source := &stubSource{provider: domain.ProviderEbay}
	dropRunner := &stubDrop{}
	svc := testScrape(source, &stubListings{}, dropRunner)
	svc.cfg.Picks = 6

	if _, err := svc.Run(context.Background(), domain.DropJob{}); err != nil {
		t.Fatalf("скрейп не удался: %v", err)
	}
	if len(dropRunner.jobs) != 1 || dropRunner.jobs[0].Picks != 6 {
		t.Fatalf("задача без лимита должна получать Picks из конфига: %+v", dropRunner.jobs)
	}

	dropRunner.jobs = nil
	if _, err := svc.Run(context.Background(), domain.DropJob{Picks: 2}); err != nil {
		t.Fatalf("скрейп не удался: %v", err)
	}
	if len(dropRunner.jobs) != 1 || dropRunner.jobs[0].Picks != 2 {
		t.Fatalf("явный Picks задачи должен сохраняться: %+v", dropRunner.jobs)
	}
}

func TestRunHonoursJobTopics(t *testing.T) {
	source := &stubSource{provider: domain.ProviderEbay}
	svc := testScrape(source, &stubListings{}, &stubDrop{})

	if _, err := svc.Run(context.Background(), domain.DropJob{Topics: []string{"usb lamps"}}); err != nil {
		t.Fatalf("скрейп не удался: %v", err)
	}
	for _, q := range source.queries {
		if !strings.Contains(strings.ToLower(q), "usb") {
			t.Fatalf("запросы должны строиться по теме задачи: %v", source.queries)
		}
	}
}

func TestSyntheticSignal(t *testing.T) {
	l := domain.Listing{TopRated: true, SellerFeedback: 3000, Price: 60}
	// 5 за топ-рейтинг + 3 за фидбек + 4 за ценовой диапазон.
	if got := SyntheticSignal(l); got != 12 {
		t.Fatalf("SyntheticSignal = %f, ожидалось 12", got)
	}
	cheap := domain.Listing{SellerFeedback: 10_000_000, Price: 7}
	// Фидбек ограничен пятью, дешёвый диапазон даёт 2.
	if got := SyntheticSignal(cheap); got != 7 {
		t.Fatalf("SyntheticSignal = %f, ожидалось 7", got)
	}
	if got := SyntheticSignal(domain.Listing{Price: 900}); got != 0 {
		t.Fatalf("дорогая карточка без заслуг должна давать 0: %f", got)
	}
}
