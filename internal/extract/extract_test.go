package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetline/confectioner/internal/models"
)

func TestWeightFromText(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"2,5", 2.5},
		{"2.5", 2.5},
		{"2,5 кг", 2.5},
		{"примерно 3 кг", 3},
		{"1.2kg", 1.2},
		{"500 г", 0.5},
		{"500г.", 0.5},
		{"750 g", 0.75},
		{"торт на 2 килограмма", 2},
	}
	for _, c := range cases {
		got := WeightFromText(c.text)
		if got == nil {
			t.Errorf("%q: expected %g, got nil", c.text, c.want)
			continue
		}
		if *got != c.want {
			t.Errorf("%q: expected %g, got %g", c.text, c.want, *got)
		}
	}
}

func TestWeightFromText_NoNumber(t *testing.T) {
	for _, text := range []string{"много", "не знаю", "", "побольше"} {
		if got := WeightFromText(text); got != nil {
			t.Errorf("%q: expected nil, got %g", text, *got)
		}
	}
}

func TestDateFromText(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"нужен к 20.12.2025 пожалуйста", "20.12.2025"},
		{"20-12-2025", "20-12-2025"},
		{"20/12/2025", "20/12/2025"},
		{"2025-12-20", "2025-12-20"},
		{"к 20.12.25", "20.12.25"},
		{"на следующей неделе", ""},
	}
	for _, c := range cases {
		if got := DateFromText(c.text); got != c.want {
			t.Errorf("%q: expected %q, got %q", c.text, c.want, got)
		}
	}
}

func TestIngredientsFromText(t *testing.T) {
	got := IngredientsFromText("Хочу торт с Вишней и кремом")
	if got != "вишня, крем" {
		t.Errorf("expected %q, got %q", "вишня, крем", got)
	}
	if got := IngredientsFromText("просто торт"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestRegexExtractor(t *testing.T) {
	e := NewRegexExtractor()
	fields := e.ExtractOrderFields(context.Background(), "Торт с шоколадом на 2,5 кг к 20.12.2025")
	if fields.Weight == nil || *fields.Weight != 2.5 {
		t.Errorf("weight: %v", fields.Weight)
	}
	if fields.DeliveryDate != "20.12.2025" {
		t.Errorf("date: %q", fields.DeliveryDate)
	}
	if fields.Ingredients != "шоколад" {
		t.Errorf("ingredients: %q", fields.Ingredients)
	}
}

// mockFieldSource simulates the AI backend.
type mockFieldSource struct {
	fields models.DraftFields
	err    error
	block  bool
}

func (m *mockFieldSource) ExtractOrderFields(ctx context.Context, text string) (models.DraftFields, error) {
	if m.block {
		<-ctx.Done()
		return models.DraftFields{}, ctx.Err()
	}
	return m.fields, m.err
}

func TestGenAIExtractor_UsesSourceResult(t *testing.T) {
	w := 4.0
	e := NewGenAIExtractor(&mockFieldSource{fields: models.DraftFields{Weight: &w, Decor: "розы"}})
	fields := e.ExtractOrderFields(context.Background(), "anything")
	if fields.Weight == nil || *fields.Weight != 4.0 || fields.Decor != "розы" {
		t.Errorf("unexpected fields: %+v", fields)
	}
}

func TestGenAIExtractor_FallsBackOnError(t *testing.T) {
	e := NewGenAIExtractor(&mockFieldSource{err: errors.New("api down")})
	fields := e.ExtractOrderFields(context.Background(), "торт 2,5 кг")
	if fields.Weight == nil || *fields.Weight != 2.5 {
		t.Errorf("expected regex fallback weight 2.5, got %+v", fields)
	}
}

func TestGenAIExtractor_FallsBackOnEmptyResult(t *testing.T) {
	e := NewGenAIExtractor(&mockFieldSource{})
	fields := e.ExtractOrderFields(context.Background(), "торт с вишней")
	if fields.Ingredients != "вишня" {
		t.Errorf("expected regex fallback ingredients, got %+v", fields)
	}
}

func TestGenAIExtractor_FallsBackOnTimeout(t *testing.T) {
	e := NewGenAIExtractor(&mockFieldSource{block: true}, WithTimeout(1))
	fields := e.ExtractOrderFields(context.Background(), "3 кг")
	if fields.Weight == nil || *fields.Weight != 3.0 {
		t.Errorf("expected regex fallback after timeout, got %+v", fields)
	}
}
