package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweetline/confectioner/internal/models"
)

// DefaultExtractionTimeout bounds one AI extraction call. A slow model must
// never hang the user's dialogue turn.
const DefaultExtractionTimeout = 10 * time.Second

// FieldSource is the AI backend of the GenAI extractor. The genai.Client
// satisfies this interface.
type FieldSource interface {
	ExtractOrderFields(ctx context.Context, text string) (models.DraftFields, error)
}

// GenAIExtractor extracts order fields with an AI backend and degrades to the
// regex extractor on any failure, timeout or empty result.
type GenAIExtractor struct {
	source   FieldSource
	fallback *RegexExtractor
	timeout  time.Duration
}

// GenAIOption configures a GenAIExtractor.
type GenAIOption func(*GenAIExtractor)

// WithTimeout overrides the per-call extraction timeout.
func WithTimeout(d time.Duration) GenAIOption {
	return func(e *GenAIExtractor) { e.timeout = d }
}

// NewGenAIExtractor creates an extractor backed by source.
func NewGenAIExtractor(source FieldSource, opts ...GenAIOption) *GenAIExtractor {
	e := &GenAIExtractor{
		source:   source,
		fallback: NewRegexExtractor(),
		timeout:  DefaultExtractionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractOrderFields never fails: AI errors and timeouts degrade to the
// regex fallback, which itself can only return absent fields.
func (e *GenAIExtractor) ExtractOrderFields(ctx context.Context, text string) models.DraftFields {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	fields, err := e.source.ExtractOrderFields(callCtx, text)
	if err != nil {
		slog.Warn("GenAIExtractor falling back to regex extraction", "error", err)
		return e.fallback.ExtractOrderFields(ctx, text)
	}
	if fields.Empty() {
		return e.fallback.ExtractOrderFields(ctx, text)
	}
	return fields
}
