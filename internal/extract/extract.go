// Package extract turns free text into structured order field candidates.
//
// The Extractor contract never fails for the caller: on any internal error an
// implementation returns an all-absent result. The regex extractor is the
// always-available fallback; the GenAI extractor delegates to OpenAI and
// degrades to the regex extractor on failure or timeout.
package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sweetline/confectioner/internal/models"
)

// Extractor extracts structured order fields from free text. Implementations
// must not fail: absent fields stay zero, nothing more.
type Extractor interface {
	ExtractOrderFields(ctx context.Context, text string) models.DraftFields
}

// Weight patterns, most specific first. Gram units are converted to kilograms.
var weightPatterns = []struct {
	re    *regexp.Regexp
	grams bool
}{
	{re: regexp.MustCompile(`(?i)(\d+[,.]?\d*)\s*кг`)},
	{re: regexp.MustCompile(`(?i)(\d+[,.]?\d*)\s*kg`)},
	{re: regexp.MustCompile(`(?i)(\d+[,.]?\d*)\s*г(?:\s|\.|,|$)`), grams: true},
	{re: regexp.MustCompile(`(?i)(\d+[,.]?\d*)\s*g\b`), grams: true},
	{re: regexp.MustCompile(`(\d+[,.]?\d*)`)},
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{4}`),
	regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`),
	regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{2}`),
}

// ingredientKeywords is the vocabulary recognized by the fallback extractor.
var ingredientKeywords = []string{
	"шоколад", "вишня", "клубника", "крем", "орехи", "изюм", "масло",
	"сметана", "творог", "яйца", "мука", "сахар", "ваниль", "какао",
	"малина", "черника", "лимон", "апельсин", "кокос", "миндаль",
	"фундук", "кешью", "фисташки", "сливки", "повидло", "джем",
}

// WeightFromText extracts a weight in kilograms from free text. Both comma
// and dot decimal separators are accepted; when several numbers match, the
// first wins. Returns nil when no number is found.
func WeightFromText(text string) *float64 {
	for _, p := range weightPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		w, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil {
			continue
		}
		if p.grams {
			w /= 1000
		}
		return &w
	}
	return nil
}

// DateFromText extracts the first date-looking token from free text,
// returned verbatim. Returns empty when no known format matches.
func DateFromText(text string) string {
	for _, re := range datePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// IngredientsFromText returns the known ingredient keywords present in text,
// joined with commas, or empty when none match.
func IngredientsFromText(text string) string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range ingredientKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return strings.Join(found, ", ")
}

// RegexExtractor is the pure-regex fallback implementation of Extractor.
type RegexExtractor struct{}

// NewRegexExtractor creates the fallback extractor.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

// ExtractOrderFields extracts weight, delivery date and ingredients using
// regular expressions and the ingredient keyword vocabulary.
func (e *RegexExtractor) ExtractOrderFields(ctx context.Context, text string) models.DraftFields {
	return models.DraftFields{
		Weight:       WeightFromText(text),
		DeliveryDate: DateFromText(text),
		Ingredients:  IngredientsFromText(text),
	}
}
