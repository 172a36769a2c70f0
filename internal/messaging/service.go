// Package messaging defines the pluggable message delivery abstraction and
// the dispatcher that runs the order dialogue over it.
package messaging

import (
	"context"
	"time"

	"github.com/sweetline/confectioner/internal/models"
)

// Constants shared by service implementations.
const (
	// DefaultChannelBufferSize defines the default buffer size for response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations.
	DefaultChannelTimeout = 1 * time.Second
)

// Service defines a pluggable message delivery abstraction for one platform.
// It supports sending text and images to a conversation and provides a
// channel of normalized incoming messages.
type Service interface {
	// Platform identifies the channel this service talks to.
	Platform() models.Platform

	// SendMessage sends a text message to a conversation.
	SendMessage(ctx context.Context, conversationID, body string) error

	// SendImage sends an image by URL to a conversation, with a caption.
	SendImage(ctx context.Context, conversationID, imageURL, caption string) error

	// Start begins any background processing (event handling or polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of normalized incoming messages.
	Responses() <-chan models.Response
}
