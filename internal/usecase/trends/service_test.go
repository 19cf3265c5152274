package trends

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

type stubTopicSource struct {
	topics []string
	err    error
}

func (s *stubTopicSource) TrendingTopics(_ context.Context, _ int) ([]string, error) {
	return s.topics, s.err
}

func noShuffle(s *Service) *Service {
	s.shuffle = func([]string) {}
	return s
}

func TestCleanTopic(t *testing.T) {
	if got := CleanTopic("  air fryer  "); got != "air fryer" {
		t.Fatalf("тема должна обрезаться: %q", got)
	}
	for _, bad := range []string{"lakers vs celtics", "taylor swift net worth", "how to fix sink"} {
		if got := CleanTopic(bad); got != "" {
			t.Errorf("новостная тема %q должна отбрасываться, получено %q", bad, got)
		}
	}
}

func TestQueryVariants(t *testing.T) {
	got := QueryVariants("air fryer", 3)
	want := []string{"air fryer", "air fryer deals", "best air fryer"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("варианты неверны: %v", got)
	}

	single := QueryVariants("smartwatch", 10)
	found := false
	for _, v := range single {
		if v == "smartwatch gadget" {
			found = true
		}
	}
	if !found {
		t.Fatalf("однословная тема должна получать вариант gadget: %v", single)
	}

	if QueryVariants("how to cook", 3) != nil {
		t.Fatalf("непригодная тема должна давать пустой список")
	}

	if got := QueryVariants("desk  lamp", 1); len(got) != 1 || got[0] != "desk lamp" {
		t.Fatalf("пробелы должны схлопываться, лимит соблюдаться: %v", got)
	}
}

func TestTopTopicsFeedCleansAndLimits(t *testing.T) {
	src := &stubTopicSource{topics: []string{"air fryer", "lakers vs celtics", "desk lamp", "massage gun"}}
	svc := noShuffle(NewService(src, "", zerolog.Nop()))
	got := svc.TopTopics(context.Background(), 2)
	want := []string{"air fryer", "desk lamp"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("темы фида должны чиститься и ограничиваться: %v", got)
	}
}

func TestTopTopicsFallsBackToSeeds(t *testing.T) {
	src := &stubTopicSource{err: errors.New("feed down")}
	svc := noShuffle(NewService(src, "", zerolog.Nop()))
	got := svc.TopTopics(context.Background(), 100)
	if len(got) != len(seedTopics) {
		t.Fatalf("при падении фида ожидается встроенный список, получено %d тем", len(got))
	}
}

func TestTopTopicsSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.toml")
	content := "topics = [\"usb hub\", \"lakers vs celtics\", \"rgb lamp\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("не удалось записать seed-файл: %v", err)
	}
	src := &stubTopicSource{err: errors.New("feed down")}
	svc := noShuffle(NewService(src, path, zerolog.Nop()))
	got := svc.TopTopics(context.Background(), 10)
	want := []string{"usb hub", "rgb lamp"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("seed-файл должен перекрывать встроенный список: %v", got)
	}
}
