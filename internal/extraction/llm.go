package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tatankam/eventmap/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const maxAttempts = 3

const systemPrompt = `You extract trip search parameters from a sentence.
Return ONLY a JSON object with these keys:
  "origin_address": string,
  "destination_address": string,
  "buffer_distance": number (kilometres around the route),
  "start_window": ISO 8601 date-time of departure,
  "end_window": ISO 8601 date-time of arrival,
  "query_text": search keywords found after phrases like "about", "on" or "for", else "",
  "result_limit": integer,
  "travel_profile": one of "driving", "cycling", "walking".
Use only values present in the sentence; omit keys the sentence does not mention.
Resolve relative dates against the current time: %s.
No commentary, no markdown.`

// Config configures an OpenAI-compatible chat endpoint
type Config struct {
	Host   string
	Model  string
	APIKey string
}

// LLMExtractor implements Extractor with a chat model in JSON mode
type LLMExtractor struct {
	client llms.Model
	now    func() time.Time
	logger *slog.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor connects to the chat endpoint described by cfg
func NewLLMExtractor(cfg Config) (*LLMExtractor, error) {
	if cfg.Model == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Host != "" && !strings.HasSuffix(cfg.Host, "/v1") {
		cfg.Host = strings.TrimSuffix(cfg.Host, "/") + "/v1"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "none"
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.Host != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Host))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return NewLLMExtractorWithModel(client), nil
}

// NewLLMExtractorWithModel wraps an existing model
func NewLLMExtractorWithModel(model llms.Model) *LLMExtractor {
	return &LLMExtractor{
		client: model,
		now:    time.Now,
		logger: slog.Default().With("component", "llm-extractor"),
	}
}

// Extract asks the model for the payload, retrying on malformed JSON, then
// applies defaults and validates. Invalid payloads yield *ValidationError.
func (e *LLMExtractor) Extract(ctx context.Context, sentence string) (*models.RouteEventsRequest, error) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return nil, &ValidationError{Fields: []FieldError{{Field: "sentence", Message: "is required"}}}
	}

	now := e.now()
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, fmt.Sprintf(systemPrompt, now.Format(time.RFC3339))),
		llms.TextParts(schema.ChatMessageTypeHuman, sentence),
	}

	var raw rawPayload
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}
		if len(resp.Choices) < 1 {
			lastErr = errors.New("model returned no choices")
			continue
		}

		text := repairJSON(resp.Choices[0].Content)
		raw = rawPayload{}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			lastErr = err
			e.logger.Warn("error parsing model response", "attempt", attempt+1, "response", text, "err", err)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "response", Message: lastErr.Error()}}}
	}

	payload, err := raw.finalize(now)
	if err != nil {
		e.logger.Debug("extracted payload rejected", "err", err)
		return nil, err
	}
	e.logger.Debug("extracted payload",
		"origin", payload.OriginAddress,
		"destination", payload.DestinationAddress,
		"profile", payload.TravelProfile)
	return payload, nil
}

// repairJSON strips code fences and surrounding chatter, and drops trailing
// commas before closing brackets
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			s = s[start : end+1]
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
		}
		if ch == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}
