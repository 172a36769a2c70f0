package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
)

// MaxImagePromptLength caps the DALL-E prompt length.
const MaxImagePromptLength = 1000

// buildImagePrompt assembles the DALL-E prompt from order details.
func buildImagePrompt(description string, weight *float64, decor string) string {
	var b strings.Builder
	b.WriteString("Реалистичный торт ")
	b.WriteString(description)
	if weight != nil {
		fmt.Fprintf(&b, ", вес %g кг", *weight)
	}
	if decor != "" {
		b.WriteString(", декор: ")
		b.WriteString(decor)
	}
	b.WriteString(", вид сверху, студийное освещение, высокое качество, фотореалистичный стиль")

	prompt := b.String()
	if runes := []rune(prompt); len(runes) > MaxImagePromptLength {
		prompt = string(runes[:MaxImagePromptLength])
	}
	return prompt
}

// GenerateCakeImage renders a cake preview with DALL-E 3 and returns the
// hosted image URL.
func (c *Client) GenerateCakeImage(ctx context.Context, description string, weight *float64, decor string) (string, error) {
	prompt := buildImagePrompt(description, weight, decor)
	slog.Debug("GenAI GenerateCakeImage invoked", "prompt_length", len(prompt))

	resp, err := c.images.Generate(ctx, openai.ImageGenerateParams{
		Model:   openai.ImageModelDallE3,
		Prompt:  prompt,
		N:       openai.Int(1),
		Size:    openai.ImageGenerateParamsSize1024x1024,
		Quality: openai.ImageGenerateParamsQualityStandard,
	})
	if err != nil {
		slog.Error("GenAI GenerateCakeImage error", "error", err)
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("no image data returned")
	}
	return resp.Data[0].URL, nil
}
