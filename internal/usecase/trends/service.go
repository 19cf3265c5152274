package trends

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
)

// Темы по умолчанию, когда фид недоступен и seed-файл не задан.
var seedTopics = []string{
	"desk lamp", "pickleball paddle", "massage gun", "wireless charger",
	"rgb lamp", "pet hair trimmer", "mechanical keyboard", "bike light",
	"cordless vacuum", "air fryer", "smart light strip", "portable monitor",
}

// Подстроки, по которым тема отбрасывается: новостные и биографические
// запросы не конвертируются в товары.
var badTopicSubstrings = []string{
	"vs", "score", "how to", "meaning", "lyrics", "who is", "age", "net worth",
}

// Service выбирает темы для скрейпа: фид трендов с запасным списком
// и расширение темы в поисковые варианты.
type Service struct {
	source   domain.TopicSource
	seedFile string
	log      zerolog.Logger
	shuffle  func([]string)
}

// NewService создаёт сервис выбора тем. seedFile — необязательный TOML
// со списком тем оператора, перекрывает встроенный запасной список.
func NewService(source domain.TopicSource, seedFile string, logger zerolog.Logger) *Service {
	return &Service{
		source:   source,
		seedFile: seedFile,
		log:      logger.With().Str("component", "trends").Logger(),
		shuffle: func(topics []string) {
			rand.Shuffle(len(topics), func(i, j int) {
				topics[i], topics[j] = topics[j], topics[i]
			})
		},
	}
}

// CleanTopic отбрасывает непригодные темы, возвращая пустую строку.
func CleanTopic(topic string) string {
	topic = strings.TrimSpace(topic)
	lower := strings.ToLower(topic)
	for _, bad := range badTopicSubstrings {
		if strings.Contains(lower, bad) {
			return ""
		}
	}
	return topic
}

// QueryVariants расширяет тему в поисковые варианты: детерминированный
// порядок, без дублей и пустых строк, не больше maxVariants.
func QueryVariants(topic string, maxVariants int) []string {
	base := CleanTopic(topic)
	if base == "" {
		return nil
	}
	if maxVariants < 1 {
		maxVariants = 1
	}
	candidates := []string{
		base,
		base + " deals",
		"best " + base,
		base + " sale",
		"trending " + base,
	}
	if len(strings.Fields(base)) == 1 {
		candidates = append(candidates, base+" gadget")
	}
	variants := make([]string, 0, maxVariants)
	seen := make(map[string]struct{})
	for _, phrase := range candidates {
		cleaned := strings.Join(strings.Fields(phrase), " ")
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		variants = append(variants, cleaned)
		if len(variants) >= maxVariants {
			break
		}
	}
	return variants
}

// TopTopics возвращает до limit перемешанных тем: фид → seed-файл → встроенный список.
func (s *Service) TopTopics(ctx context.Context, limit int) []string {
	if limit <= 0 {
		limit = 8
	}

	var topics []string
	if s.source != nil {
		raw, err := s.source.TrendingTopics(ctx, limit*2)
		if err != nil {
			s.log.Warn().Err(err).Msg("фид трендов недоступен, используем запасной список")
		}
		for _, topic := range raw {
			if cleaned := CleanTopic(topic); cleaned != "" {
				topics = append(topics, cleaned)
			}
		}
	}
	if len(topics) == 0 {
		topics = s.fallbackTopics()
	}
	s.shuffle(topics)
	if len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}

type seedFileDoc struct {
	Topics []string `toml:"topics"`
}

func (s *Service) fallbackTopics() []string {
	if s.seedFile != "" {
		topics, err := loadSeedFile(s.seedFile)
		if err != nil {
			s.log.Warn().Err(err).Str("path", s.seedFile).Msg("seed-файл не прочитан")
		} else if len(topics) > 0 {
			return topics
		}
	}
	out := make([]string, len(seedTopics))
	copy(out, seedTopics)
	return out
}

func loadSeedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc seedFileDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	topics := make([]string, 0, len(doc.Topics))
	for _, topic := range doc.Topics {
		if cleaned := CleanTopic(topic); cleaned != "" {
			topics = append(topics, cleaned)
		}
	}
	return topics, nil
}
