// Package models defines the core data structures for the confectioner assistant.
//
// It includes users, orders, chat records and the message/side-effect types
// shared between the dialogue engine and the channel adapters.
package models

import (
	"errors"
	"time"
)

// Platform identifies one of the supported messaging channels.
type Platform string

const (
	// PlatformWhatsApp is the chat platform (native whatsmeow or Twilio provider).
	PlatformWhatsApp Platform = "whatsapp"
	// PlatformVK is the social-network platform (Callback API).
	PlatformVK Platform = "vk"
	// PlatformAvito is the classifieds platform (messenger polling).
	PlatformAvito Platform = "avito"
)

// IsValidPlatform checks if the given platform is supported.
func IsValidPlatform(p Platform) bool {
	switch p {
	case PlatformWhatsApp, PlatformVK, PlatformAvito:
		return true
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient    = errors.New("recipient cannot be empty")
	ErrServiceStopped    = errors.New("messaging service is stopped")
	ErrUserNotFound      = errors.New("user not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrDraftIncomplete   = errors.New("order draft is missing description or weight")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Gender is a coarse user attribute used only for reply personalization.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// User is a persisted participant identified by (platform, platform user id).
type User struct {
	ID             string    `json:"id"`
	Platform       Platform  `json:"platform"`
	PlatformUserID string    `json:"platform_user_id"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	Age            int       `json:"age,omitempty"`
	Gender         Gender    `json:"gender,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Profile extracts the personalization attributes used by the AI reply layer.
func (u *User) Profile() UserProfile {
	if u == nil {
		return UserProfile{}
	}
	return UserProfile{Age: u.Age, Gender: u.Gender}
}

// UserProfile carries the attributes that shape generated replies.
// The zero value means "nothing known" and is always safe to pass.
type UserProfile struct {
	Age    int    `json:"age,omitempty"`
	Gender Gender `json:"gender,omitempty"`
}

// OrderStatus represents the lifecycle status of a persisted order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// CanTransitionTo reports whether the status lifecycle allows moving to next.
// The lifecycle is linear (pending → confirmed → in_progress → completed);
// cancellation is allowed from any non-terminal status.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if next == OrderStatusCancelled {
		return s != OrderStatusCompleted && s != OrderStatusCancelled
	}
	switch s {
	case OrderStatusPending:
		return next == OrderStatusConfirmed
	case OrderStatusConfirmed:
		return next == OrderStatusInProgress
	case OrderStatusInProgress:
		return next == OrderStatusCompleted
	default:
		return false
	}
}

// Order is a committed cake order. Immutable once created except for status
// changes and image URL enrichment.
type Order struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Platform     Platform    `json:"platform"`
	Description  string      `json:"description"`
	Weight       float64     `json:"weight"`
	Ingredients  []string    `json:"ingredients,omitempty"`
	DeliveryDate string      `json:"delivery_date,omitempty"`
	Status       OrderStatus `json:"status"`
	Price        float64     `json:"price,omitempty"`
	ImageURL     string      `json:"image_url,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// ChatRecord is one persisted exchange: an inbound message and, when the
// assistant replied, the reply and the model that produced it.
type ChatRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Platform  Platform  `json:"platform"`
	Message   string    `json:"message"`
	Response  string    `json:"response,omitempty"`
	AIModel   string    `json:"ai_model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Response represents an incoming message normalized by a channel adapter.
type Response struct {
	Platform       Platform `json:"platform"`
	UserID         string   `json:"user_id"`
	ConversationID string   `json:"conversation_id"`
	Body           string   `json:"body"`
	FirstName      string   `json:"first_name,omitempty"`
	LastName       string   `json:"last_name,omitempty"`
	Time           int64    `json:"time"`
}

// MessageKind defines how an outbound message body is produced.
type MessageKind string

const (
	// MessageKindStatic sends the content verbatim.
	MessageKindStatic MessageKind = "static"
	// MessageKindGenAI treats the content as a prompt for the AI reply layer;
	// the adapter resolves it to text before sending.
	MessageKindGenAI MessageKind = "genai"
	// MessageKindImage sends the content as an image URL.
	MessageKindImage MessageKind = "image"
)

// OutboundMessage is one message the dialogue engine asks an adapter to send.
// Messages are sent in the order the engine emitted them.
type OutboundMessage struct {
	Kind    MessageKind `json:"kind"`
	Content string      `json:"content"`
}

// StaticMessage builds a verbatim outbound message.
func StaticMessage(body string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindStatic, Content: body}
}

// GenAIMessage builds an outbound message whose body is generated from prompt.
func GenAIMessage(prompt string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindGenAI, Content: prompt}
}

// SideEffect is a descriptive request the dialogue engine hands back to the
// channel adapter. The engine performs no I/O itself; adapters execute these
// after the state transition has been computed.
type SideEffect interface {
	sideEffect()
}

// CommitOrder asks the adapter to persist the accumulated draft as an order.
type CommitOrder struct {
	Draft OrderDraft
}

// NotifyStaff asks the adapter to forward an order summary to the staff
// conversation. The adapter fills in the committed order and generated image
// URL when executing the effect; the draft is kept as a summary fallback.
type NotifyStaff struct {
	Draft OrderDraft
}

func (CommitOrder) sideEffect() {}
func (NotifyStaff) sideEffect() {}
