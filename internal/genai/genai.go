// Package genai provides GenAI-backed operations using the OpenAI API.
//
// It covers the three AI touchpoints of the assistant: personalized chat
// replies, structured order-field extraction from free text, and cake image
// generation for committed orders.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sweetline/confectioner/internal/models"
)

// Model identifiers recorded on chat records alongside generated replies.
const (
	ChatModelName  = "gpt-4o-mini"
	ImageModelName = "dall-e-3"
)

// ErrNoChoicesReturned indicates the API returned an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// imageService defines the minimal interface for image generation.
type imageService interface {
	Generate(ctx context.Context, params openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// Client wraps the OpenAI API for the assistant's generative operations.
type Client struct {
	chat   chatService
	images imageService
}

// NewClient initializes a GenAI client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, images: &cli.Images}, nil
}

// systemPrompt builds the confectioner assistant system prompt, adapted to
// the client's age and gender when known.
func systemPrompt(profile models.UserProfile) string {
	var b strings.Builder
	b.WriteString("Ты - AI-помощник кондитера. Помоги клиенту оформить заказ на торт или десерт. ")
	b.WriteString("Уточни детали: вес, форму, начинку, декор, дату доставки. ")
	b.WriteString("Стиль общения адаптируй под клиента. ")
	if profile.Age > 0 {
		if profile.Age < 18 {
			b.WriteString("Клиент несовершеннолетний, общайся с уважением и осторожно. ")
		} else if profile.Age > 60 {
			b.WriteString("Клиент пожилой, общайся с уважением и терпением. ")
		}
	}
	switch profile.Gender {
	case models.GenderMale:
		b.WriteString("Клиент мужчина. ")
	case models.GenderFemale:
		b.WriteString("Клиент женщина. ")
	}
	b.WriteString("Отвечай кратко и по существу, задавай уточняющие вопросы.")
	return b.String()
}

// GenerateReply produces a personalized assistant reply to a user message.
func (c *Client) GenerateReply(ctx context.Context, message string, profile models.UserProfile) (string, error) {
	slog.Debug("GenAI GenerateReply invoked", "message_length", len(message))
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(profile)),
			openai.UserMessage(message),
		},
		MaxTokens:   openai.Int(500),
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		slog.Error("GenAI GenerateReply error", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// extractionPrompt asks the model for a fixed-key JSON object.
const extractionPrompt = `Проанализируй описание заказа на торт и извлеки следующую информацию:
- Вес (в кг)
- Основные ингредиенты/начинка
- Предпочтения по декору
- Дата доставки (если указана)

Описание: %s

Ответь в формате JSON с ключами: weight, ingredients, decor, delivery_date.
Если какая-то информация отсутствует, верни null для этого поля.`

// ExtractOrderFields asks the model to pull structured order fields out of a
// free-text description. Missing fields come back zero.
func (c *Client) ExtractOrderFields(ctx context.Context, description string) (models.DraftFields, error) {
	slog.Debug("GenAI ExtractOrderFields invoked", "description_length", len(description))
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(extractionPrompt, description)),
		},
		MaxTokens:   openai.Int(300),
		Temperature: openai.Float(0.3),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		slog.Error("GenAI ExtractOrderFields error", "error", err)
		return models.DraftFields{}, err
	}
	if len(resp.Choices) == 0 {
		return models.DraftFields{}, ErrNoChoicesReturned
	}
	return parseExtractedFields(resp.Choices[0].Message.Content)
}

// parseExtractedFields decodes the model's JSON answer. The model is not
// fully trustworthy about value types, so numbers may arrive as strings and
// ingredients as either a string or a list.
func parseExtractedFields(raw string) (models.DraftFields, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return models.DraftFields{}, fmt.Errorf("malformed extraction payload: %w", err)
	}

	var fields models.DraftFields
	if w := jsonNumber(payload["weight"]); w != nil {
		fields.Weight = w
	}
	fields.Ingredients = jsonText(payload["ingredients"])
	fields.Decor = jsonText(payload["decor"])
	fields.DeliveryDate = jsonText(payload["delivery_date"])
	return fields, nil
}

func jsonNumber(raw json.RawMessage) *float64 {
	if raw == nil {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, perr := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64); perr == nil {
			return &v
		}
	}
	return nil
}

func jsonText(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}
