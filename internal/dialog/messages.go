package dialog

import (
	"fmt"
	"strings"

	"github.com/sweetline/confectioner/internal/models"
)

// User-facing texts of the dialogue. The genai-kind prompts are resolved to
// personalized replies by the channel adapter before sending.
const (
	WelcomeMessage = "🎂 Добро пожаловать в кондитерскую AI-помощника!\n\n" +
		"Я помогу вам оформить заказ на торт или десерт. " +
		"Давайте начнем с описания, какой торт вы хотите?"

	WeightPrompt = "Теперь укажите вес торта в килограммах:"

	ClarifyMessage = "Пожалуйста, уточните, что вы хотели бы изменить в заказе."

	ClosingMessage = "Ваш заказ принят! 🎂 Кондитер свяжется с вами в ближайшее время " +
		"для уточнения деталей. Спасибо за заказ!"

	confirmSuffix = "Все верно? Отправьте 'Да' для подтверждения или уточните, что нужно изменить."
)

// orderTriggers are keywords whose presence in an Idle message starts the
// order dialogue.
var orderTriggers = []string{
	"заказ", "торт", "десерт", "хочу", "нужен", "нужна",
	"order", "cake", "dessert", "want", "need",
}

// startCommands start the dialogue regardless of keyword matching.
var startCommands = []string{"/start", "start", "начать"}

// affirmativeTokens confirm an order. Matching is exact after trim+lowercase;
// a message that merely contains a token does not confirm.
var affirmativeTokens = []string{
	"да", "ок", "подтверждаю", "yes", "y", "ok", "confirm",
}

// IsOrderTrigger reports whether text starts the order dialogue from Idle.
func IsOrderTrigger(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, cmd := range startCommands {
		if normalized == cmd {
			return true
		}
	}
	for _, kw := range orderTriggers {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// IsAffirmative reports whether text is an exact confirmation token.
func IsAffirmative(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, token := range affirmativeTokens {
		if normalized == token {
			return true
		}
	}
	return false
}

// ingredientsPrompt asks for ingredients, echoing the recognized weight when
// one was parsed.
func ingredientsPrompt(weight *float64) string {
	if weight == nil {
		return "Какие ингредиенты или начинку вы бы хотели?"
	}
	return fmt.Sprintf("Вес торта: %g кг. Какие ингредиенты или начинку вы бы хотели?", *weight)
}

// deliveryDatePrompt asks for the delivery date, echoing the ingredients.
func deliveryDatePrompt(ingredients string) string {
	return fmt.Sprintf("Ингредиенты: %s. Когда вам нужна доставка торта?", ingredients)
}

// FormatDraftSummary renders the accumulated draft for the confirmation step.
func FormatDraftSummary(d models.OrderDraft) string {
	var b strings.Builder
	b.WriteString("Вот что мы знаем о вашем заказе:\n\n")
	fmt.Fprintf(&b, "Описание: %s\n", orDefault(d.Description, "Не указано"))
	if d.Weight != nil {
		fmt.Fprintf(&b, "Вес: %g кг\n", *d.Weight)
	} else {
		b.WriteString("Вес: Не указан\n")
	}
	fmt.Fprintf(&b, "Ингредиенты: %s\n", orDefault(strings.Join(d.Ingredients, ", "), "Не указаны"))
	fmt.Fprintf(&b, "Дата доставки: %s\n", orDefault(d.DeliveryDate, "Не указана"))
	b.WriteString("\n")
	b.WriteString(confirmSuffix)
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
