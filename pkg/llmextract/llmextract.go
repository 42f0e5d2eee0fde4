// Package llmextract adapts a chat-completion model into the engine's slot
// extractor. The model sees one message at a time and answers with a JSON
// array of slot candidates; everything else about the conversation stays on
// the engine side.
package llmextract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

type Config struct {
	BaseURL             string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey              string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model               string        `envconfig:"MODEL" split_words:"true" default:"gpt-4o-mini"`
	Temperature         float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.1"`
	MaxCompletionTokens int64         `envconfig:"MAX_COMPLETION_TOKENS" split_words:"true" default:"800"`
	Timeout             time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"20s"`
}

const systemPrompt = `You extract structured facts from one sales-dialogue message.
Known slots: client_name, company_name, contact, need, process_volume, data_access, budget_band, deadline, preferred_time.
Respond with a JSON array only, no prose. Each element:
{"slot": "<slot name>", "value": "<verbatim or normalized value>", "confidence": <0.0-1.0>,
 "window_start": "<RFC3339, only for preferred_time>", "window_end": "<RFC3339, only for preferred_time>"}
Return [] when the message carries no extractable fact. Never invent values.`

type candidate struct {
	Slot        string  `json:"slot"`
	Value       string  `json:"value"`
	Confidence  float64 `json:"confidence"`
	WindowStart string  `json:"window_start,omitempty"`
	WindowEnd   string  `json:"window_end,omitempty"`
}

// Extractor calls the configured model and parses its JSON reply.
type Extractor struct {
	client      *openaisdk.Client
	model       string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

var _ contractx.Extractor = (*Extractor)(nil)

func New(cfg Config) (*Extractor, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("llmextract: api key is empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	client := openaisdk.NewClient(opts...)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openaisdk.ChatModelGPT4oMini
	}

	return &Extractor{
		client:      &client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxCompletionTokens,
		timeout:     timeout,
	}, nil
}

func (e *Extractor) Extract(ctx context.Context, conversationID, rawText string) ([]contractx.ExtractedSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := openaisdk.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(rawText),
		},
		Temperature: openaisdk.Float(e.temperature),
	}
	if e.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(e.maxTokens)
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llmextract: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	return parseCandidates(conversationID, resp.Choices[0].Message.Content), nil
}

// parseCandidates is lenient: a malformed reply yields an empty batch, never
// an error, so one bad completion cannot stall the conversation.
func parseCandidates(conversationID, content string) []contractx.ExtractedSlot {
	content = stripFences(content)
	if content == "" {
		return nil
	}

	var raw []candidate
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		log.Warn().
			Err(err).
			Str("conversation_id", conversationID).
			Msg("unparseable extractor reply dropped")
		return nil
	}

	out := make([]contractx.ExtractedSlot, 0, len(raw))
	for _, c := range raw {
		name := strings.TrimSpace(c.Slot)
		value := strings.TrimSpace(c.Value)
		if name == "" || value == "" {
			continue
		}
		confidence := c.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		slot := contractx.ExtractedSlot{
			Name:       name,
			Value:      value,
			Confidence: confidence,
		}
		if w := parseWindow(c.WindowStart, c.WindowEnd); w != nil {
			slot.Window = w
		}
		out = append(out, slot)
	}
	return out
}

func parseWindow(start, end string) *contractx.Window {
	if start == "" || end == "" {
		return nil
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return nil
	}
	w := contractx.Window{Start: s.UTC(), End: e.UTC()}
	if !w.Valid() {
		return nil
	}
	return &w
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
