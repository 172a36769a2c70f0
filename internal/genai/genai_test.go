package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sweetline/confectioner/internal/models"
)

// mockChatService captures the request and returns a canned completion.
type mockChatService struct {
	lastParams openai.ChatCompletionNewParams
	content    string
	err        error
	noChoices  bool
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	if m.noChoices {
		return &openai.ChatCompletion{}, nil
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

// mockImageService returns a canned image response.
type mockImageService struct {
	lastParams openai.ImageGenerateParams
	url        string
	err        error
}

func (m *mockImageService) Generate(ctx context.Context, params openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ImagesResponse{Data: []openai.Image{{URL: m.url}}}, nil
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when no API key is configured")
	}
	if _, err := NewClient(WithAPIKey("sk-test")); err != nil {
		t.Fatalf("unexpected error with explicit key: %v", err)
	}
}

func TestGenerateReply(t *testing.T) {
	chat := &mockChatService{content: "  Конечно, какой торт вы хотите?  "}
	c := &Client{chat: chat}

	reply, err := c.GenerateReply(context.Background(), "Привет", models.UserProfile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Конечно, какой торт вы хотите?" {
		t.Errorf("expected trimmed reply, got %q", reply)
	}
	if len(chat.lastParams.Messages) != 2 {
		t.Fatalf("expected system plus user message, got %d", len(chat.lastParams.Messages))
	}
}

func TestGenerateReply_NoChoices(t *testing.T) {
	c := &Client{chat: &mockChatService{noChoices: true}}
	if _, err := c.GenerateReply(context.Background(), "Привет", models.UserProfile{}); !errors.Is(err, ErrNoChoicesReturned) {
		t.Fatalf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestGenerateReply_PropagatesError(t *testing.T) {
	apiErr := errors.New("rate limited")
	c := &Client{chat: &mockChatService{err: apiErr}}
	if _, err := c.GenerateReply(context.Background(), "Привет", models.UserProfile{}); !errors.Is(err, apiErr) {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestSystemPrompt_ProfileAdaptation(t *testing.T) {
	base := systemPrompt(models.UserProfile{})
	if strings.Contains(base, "несовершеннолетний") || strings.Contains(base, "пожилой") {
		t.Error("empty profile must not add age hints")
	}

	minor := systemPrompt(models.UserProfile{Age: 15})
	if !strings.Contains(minor, "несовершеннолетний") {
		t.Error("expected minor hint for age 15")
	}

	senior := systemPrompt(models.UserProfile{Age: 70, Gender: models.GenderFemale})
	if !strings.Contains(senior, "пожилой") || !strings.Contains(senior, "женщина") {
		t.Errorf("expected senior and gender hints: %q", senior)
	}
}

func TestExtractOrderFields(t *testing.T) {
	chat := &mockChatService{content: `{"weight": 2.5, "ingredients": ["вишня", "крем"], "decor": "розы", "delivery_date": "20.12.2025"}`}
	c := &Client{chat: chat}

	fields, err := c.ExtractOrderFields(context.Background(), "Торт с вишней")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields.Weight == nil || *fields.Weight != 2.5 {
		t.Errorf("weight: %v", fields.Weight)
	}
	if fields.Ingredients != "вишня, крем" {
		t.Errorf("ingredients: %q", fields.Ingredients)
	}
	if fields.Decor != "розы" || fields.DeliveryDate != "20.12.2025" {
		t.Errorf("decor/date: %q %q", fields.Decor, fields.DeliveryDate)
	}
}

func TestParseExtractedFields_TypeCoercion(t *testing.T) {
	fields, err := parseExtractedFields(`{"weight": "2,5", "ingredients": "шоколад", "decor": null, "delivery_date": null}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields.Weight == nil || *fields.Weight != 2.5 {
		t.Errorf("string weight with comma not coerced: %v", fields.Weight)
	}
	if fields.Ingredients != "шоколад" {
		t.Errorf("ingredients: %q", fields.Ingredients)
	}
	if fields.Decor != "" || fields.DeliveryDate != "" {
		t.Errorf("null fields must stay zero: %q %q", fields.Decor, fields.DeliveryDate)
	}
}

func TestParseExtractedFields_Malformed(t *testing.T) {
	if _, err := parseExtractedFields("not json"); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestGenerateCakeImage(t *testing.T) {
	images := &mockImageService{url: "https://img.example/cake.png"}
	c := &Client{images: images}

	w := 2.5
	url, err := c.GenerateCakeImage(context.Background(), "торт с вишней", &w, "розы")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://img.example/cake.png" {
		t.Errorf("url: %q", url)
	}
	if !strings.Contains(images.lastParams.Prompt, "торт с вишней") || !strings.Contains(images.lastParams.Prompt, "2.5") && !strings.Contains(images.lastParams.Prompt, "2,5") {
		t.Errorf("prompt missing order details: %q", images.lastParams.Prompt)
	}
}

func TestBuildImagePrompt_Capped(t *testing.T) {
	long := strings.Repeat("очень длинное описание ", 100)
	prompt := buildImagePrompt(long, nil, "")
	if got := len([]rune(prompt)); got > MaxImagePromptLength {
		t.Errorf("prompt length %d exceeds cap", got)
	}
}
