package copywriter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/openai"
)

const copySystemPrompt = "You are a conversion-focused copywriter for an affiliate deals site. Write exciting but truthful copy."

// OpenAICopywriter генерирует копию через Chat Completions с JSON-ответом.
// При любой ошибке откатывается на детерминированные шаблоны.
type OpenAICopywriter struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

var _ domain.Copywriter = (*OpenAICopywriter)(nil)

// NewOpenAICopywriter создаёт LLM-копирайтер.
func NewOpenAICopywriter(client *openai.Client, model string, logger zerolog.Logger) *OpenAICopywriter {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAICopywriter{
		client: client,
		model:  model,
		log:    logger.With().Str("component", "copywriter").Logger(),
	}
}

// MarketingCopy запрашивает заголовок, описание и эмодзи у модели.
func (c *OpenAICopywriter) MarketingCopy(ctx context.Context, listing domain.Listing) (domain.MarketingCopy, error) {
	topic := listing.Keyword
	if len(listing.Tags) > 0 {
		topic = strings.Join(listing.Tags, ", ")
	}

	userPrompt := fmt.Sprintf(
		"Create concise marketing copy with this structure and return ONLY compact JSON.\n"+
			"Rules:\n"+
			"- headline: short, punchy, <= 90 chars; can include a leading emoji.\n"+
			"- blurb: 1-2 sentences, urgency, clear benefit + CTA.\n"+
			"- emojis: optional 2-3 emojis relevant to category.\n"+
			"- Keep it clean, no quotes or markdown.\n"+
			"Product:\n"+
			"- title: %s\n"+
			"- price: %s %.2f\n"+
			"- topic: %s\n\n"+
			"Respond as JSON with keys exactly: headline, blurb, emojis.",
		listing.Title, listing.Currency, listing.Price, topic,
	)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: copySystemPrompt},
			{Role: openai.RoleUser, Content: userPrompt},
		},
		Temperature:    0.8,
		MaxTokens:      200,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("LLM-копия не сгенерирована, используем шаблон")
		return fallbackCopy(listing), nil
	}
	if len(resp.Choices) == 0 {
		return fallbackCopy(listing), nil
	}

	var payload struct {
		Headline string `json:"headline"`
		Blurb    string `json:"blurb"`
		Emojis   string `json:"emojis"`
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		c.log.Warn().Err(err).Msg("ответ LLM не разобран как JSON, используем шаблон")
		return fallbackCopy(listing), nil
	}
	payload.Headline = strings.TrimSpace(payload.Headline)
	payload.Blurb = strings.TrimSpace(payload.Blurb)
	if payload.Headline == "" || payload.Blurb == "" {
		return fallbackCopy(listing), nil
	}

	return domain.MarketingCopy{
		Headline: capTo(payload.Headline, headlineMaxLen),
		Blurb:    capTo(payload.Blurb, blurbMaxLen),
		Emojis:   capTo(strings.TrimSpace(payload.Emojis), emojisMaxLen),
	}, nil
}

// Caption возвращает однострочную подпись; LLM для неё не вызывается.
func (c *OpenAICopywriter) Caption(listing domain.Listing) string {
	return fallbackCaption(listing)
}

func capTo(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
