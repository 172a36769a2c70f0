// Package dialog implements the order dialogue as a pure state-transition
// function.
//
// Step performs no I/O and cannot fail: every (state, input) pair maps to a
// defined next state, unparsable input degrades to a re-prompt or a skipped
// field, and malformed state tags collapse to Idle. Extraction and message
// delivery are the channel adapter's concern; the engine only describes them
// as outbound messages and side-effect values.
package dialog

import (
	"github.com/sweetline/confectioner/internal/extract"
	"github.com/sweetline/confectioner/internal/models"
)

// Input is one incoming message, normalized by a channel adapter. Extracted
// carries candidate fields the adapter already pulled out of the text for
// states where NeedsExtraction is true; it is zero otherwise.
type Input struct {
	Text      string
	Profile   models.UserProfile
	Extracted models.DraftFields
}

// Result is the outcome of one dialogue step.
type Result struct {
	Next     models.ConversationState
	Draft    models.OrderDraft
	Messages []models.OutboundMessage
	Effects  []models.SideEffect
	// EndSession asks the adapter to clear the conversation record instead of
	// storing Next/Draft. Set when an order was committed.
	EndSession bool
}

// NeedsExtraction reports whether the adapter should run the extraction
// adapter on the incoming text before calling Step for the given state.
func NeedsExtraction(state models.ConversationState) bool {
	return state == models.StateAwaitingDescription || state == models.StateAwaitingWeight
}

// Step advances the dialogue by one incoming message. The draft is treated as
// a value: the caller's copy is never mutated.
func Step(state models.ConversationState, draft models.OrderDraft, in Input) Result {
	draft = draft.Clone()

	switch state {
	case models.StateAwaitingDescription:
		return stepDescription(draft, in)
	case models.StateAwaitingWeight:
		return stepWeight(draft, in)
	case models.StateAwaitingIngredients:
		return stepIngredients(draft, in)
	case models.StateAwaitingDeliveryDate:
		return stepDeliveryDate(draft, in)
	case models.StateAwaitingConfirmation:
		return stepConfirmation(draft, in)
	default:
		// Idle, Completed and anything unrecognized (a corrupted record) all
		// behave as Idle.
		return stepIdle(draft, in)
	}
}

func stepIdle(draft models.OrderDraft, in Input) Result {
	if IsOrderTrigger(in.Text) {
		return Result{
			Next:     models.StateAwaitingDescription,
			Draft:    draft,
			Messages: []models.OutboundMessage{models.StaticMessage(WelcomeMessage)},
		}
	}
	// Off-topic small talk: answer with the AI layer, stay Idle.
	return Result{
		Next:     models.StateIdle,
		Draft:    draft,
		Messages: []models.OutboundMessage{models.GenAIMessage(in.Text)},
	}
}

func stepDescription(draft models.OrderDraft, in Input) Result {
	draft.Merge(models.DraftFields{Description: in.Text})
	// Pre-fill whatever the extraction adapter recovered from the free text;
	// the dedicated steps can still overwrite weight and delivery date later.
	draft.Merge(models.DraftFields{
		Weight:       in.Extracted.Weight,
		Ingredients:  in.Extracted.Ingredients,
		DeliveryDate: in.Extracted.DeliveryDate,
		Decor:        in.Extracted.Decor,
	})
	return Result{
		Next:  models.StateAwaitingWeight,
		Draft: draft,
		Messages: []models.OutboundMessage{
			models.GenAIMessage(in.Text),
			models.StaticMessage(WeightPrompt),
		},
	}
}

func stepWeight(draft models.OrderDraft, in Input) Result {
	weight := extract.WeightFromText(in.Text)
	if weight == nil {
		// Extraction fallback ran in the adapter; take its first number.
		weight = in.Extracted.Weight
	}
	draft.Merge(models.DraftFields{Weight: weight})
	// Advance even when no weight was recovered; the confirmation summary
	// shows the gap and the user can revise before committing.
	return Result{
		Next:     models.StateAwaitingIngredients,
		Draft:    draft,
		Messages: []models.OutboundMessage{models.GenAIMessage(ingredientsPrompt(draft.Weight))},
	}
}

func stepIngredients(draft models.OrderDraft, in Input) Result {
	// Stored as one free-text blob, not tokenized.
	draft.Merge(models.DraftFields{Ingredients: in.Text})
	return Result{
		Next:     models.StateAwaitingDeliveryDate,
		Draft:    draft,
		Messages: []models.OutboundMessage{models.GenAIMessage(deliveryDatePrompt(in.Text))},
	}
}

func stepDeliveryDate(draft models.OrderDraft, in Input) Result {
	// Stored verbatim; no date parsing at this step.
	draft.Merge(models.DraftFields{DeliveryDate: in.Text})
	return Result{
		Next:     models.StateAwaitingConfirmation,
		Draft:    draft,
		Messages: []models.OutboundMessage{models.StaticMessage(FormatDraftSummary(draft))},
	}
}

func stepConfirmation(draft models.OrderDraft, in Input) Result {
	if !IsAffirmative(in.Text) {
		// Re-collect the delivery date as the editable tail of the dialogue.
		return Result{
			Next:     models.StateAwaitingDeliveryDate,
			Draft:    draft,
			Messages: []models.OutboundMessage{models.StaticMessage(ClarifyMessage)},
		}
	}
	return Result{
		Next:       models.StateIdle,
		Draft:      models.OrderDraft{},
		Messages:   []models.OutboundMessage{models.StaticMessage(ClosingMessage)},
		Effects:    []models.SideEffect{models.CommitOrder{Draft: draft}, models.NotifyStaff{Draft: draft}},
		EndSession: true,
	}
}
