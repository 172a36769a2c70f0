// Package models defines conversation state structures for the order dialogue.
package models

import "time"

// ConversationState represents a participant's position in the order dialogue.
type ConversationState string

// State constants for the order dialogue.
const (
	StateIdle                 ConversationState = "idle"
	StateAwaitingDescription  ConversationState = "awaiting_description"
	StateAwaitingWeight       ConversationState = "awaiting_weight"
	StateAwaitingIngredients  ConversationState = "awaiting_ingredients"
	StateAwaitingDeliveryDate ConversationState = "awaiting_delivery_date"
	StateAwaitingConfirmation ConversationState = "awaiting_confirmation"
	StateCompleted            ConversationState = "completed"
)

// IsValidState checks if the given state is part of the dialogue.
func IsValidState(s ConversationState) bool {
	switch s {
	case StateIdle, StateAwaitingDescription, StateAwaitingWeight,
		StateAwaitingIngredients, StateAwaitingDeliveryDate,
		StateAwaitingConfirmation, StateCompleted:
		return true
	default:
		return false
	}
}

// ConversationKey uniquely identifies one active dialogue.
type ConversationKey struct {
	Platform Platform `json:"platform"`
	UserID   string   `json:"user_id"`
}

// OrderDraft accumulates answers across dialogue steps. Fields fill
// monotonically: once set they are only cleared by a session reset.
type OrderDraft struct {
	Description  string   `json:"description,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	Ingredients  []string `json:"ingredients,omitempty"`
	DeliveryDate string   `json:"delivery_date,omitempty"`
	Decor        string   `json:"decor,omitempty"`
}

// Merge applies non-empty incoming fields on top of the draft. Empty incoming
// fields never erase existing values; non-empty ones overwrite, so the user's
// dedicated ingredients answer replaces anything pre-filled by extraction.
func (d *OrderDraft) Merge(in DraftFields) {
	if in.Description != "" {
		d.Description = in.Description
	}
	if in.Weight != nil {
		w := *in.Weight
		d.Weight = &w
	}
	if in.Ingredients != "" {
		d.Ingredients = []string{in.Ingredients}
	}
	if in.DeliveryDate != "" {
		d.DeliveryDate = in.DeliveryDate
	}
	if in.Decor != "" {
		d.Decor = in.Decor
	}
}

// Clone returns a deep copy of the draft.
func (d OrderDraft) Clone() OrderDraft {
	out := d
	if d.Weight != nil {
		w := *d.Weight
		out.Weight = &w
	}
	if d.Ingredients != nil {
		out.Ingredients = append([]string(nil), d.Ingredients...)
	}
	return out
}

// Complete reports whether the draft may be promoted to a persisted order.
// Description and weight are required; the remaining fields may stay empty.
func (d OrderDraft) Complete() bool {
	return d.Description != "" && d.Weight != nil && *d.Weight > 0
}

// DraftFields is a partial update for an OrderDraft, produced by the
// extraction adapter or by a single dialogue step. Absent fields are zero.
type DraftFields struct {
	Description  string   `json:"description,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	Ingredients  string   `json:"ingredients,omitempty"`
	DeliveryDate string   `json:"delivery_date,omitempty"`
	Decor        string   `json:"decor,omitempty"`
}

// Empty reports whether the partial carries no fields at all.
func (f DraftFields) Empty() bool {
	return f.Description == "" && f.Weight == nil && f.Ingredients == "" &&
		f.DeliveryDate == "" && f.Decor == ""
}

// StateRecord is the stored state of one conversation: the current state tag,
// the accumulated draft and the last-activity timestamp used for expiry.
type StateRecord struct {
	State        ConversationState `json:"state"`
	Draft        OrderDraft        `json:"draft"`
	LastActivity time.Time         `json:"last_activity"`
}
