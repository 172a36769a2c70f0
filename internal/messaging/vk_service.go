package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sweetline/confectioner/internal/models"
	"github.com/sweetline/confectioner/internal/vk"
)

// VKService implements the Service interface over the VK Callback API.
// Inbound events arrive through the HTTP webhook handler.
type VKService struct {
	client    vk.Sender
	vkClient  *vk.Client // access to confirmation and secret handling
	responses chan models.Response
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewVKService creates a new VKService with the given VK client.
func NewVKService(client vk.Sender) *VKService {
	service := &VKService{
		client:    client,
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}

	if vkClient, ok := client.(*vk.Client); ok {
		service.vkClient = vkClient
		slog.Debug("VKService created with full client for callback handling")
	} else {
		slog.Debug("VKService created with interface client (likely mock)")
	}

	return service
}

// Platform identifies this service as the VK channel.
func (s *VKService) Platform() models.Platform {
	return models.PlatformVK
}

// Start is a no-op for VK; inbound flow is webhook driven.
func (s *VKService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service.
func (s *VKService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.responses)
	}()

	return nil
}

// SendMessage sends a text message to the given peer.
func (s *VKService) SendMessage(ctx context.Context, conversationID string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return models.ErrServiceStopped
	}
	s.mu.RUnlock()

	if conversationID == "" {
		return models.ErrEmptyRecipient
	}
	return s.client.SendMessage(ctx, conversationID, body)
}

// SendImage sends an image to the given peer.
func (s *VKService) SendImage(ctx context.Context, conversationID string, imageURL, caption string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return models.ErrServiceStopped
	}
	s.mu.RUnlock()

	if conversationID == "" {
		return models.ErrEmptyRecipient
	}
	return s.client.SendImage(ctx, conversationID, imageURL, caption)
}

// Responses returns the channel for incoming messages.
func (s *VKService) Responses() <-chan models.Response {
	return s.responses
}

// WebhookHandler handles inbound VK callback events. Confirmation requests
// are answered with the configured confirmation token; message_new events are
// emitted as models.Response; everything else is acknowledged with "ok".
func (s *VKService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("VKService failed to read callback body", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	evt, err := vk.ParseEvent(data)
	if err != nil {
		slog.Error("VKService failed to parse callback event", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.vkClient != nil && !s.vkClient.VerifySecret(evt.Secret) {
		slog.Warn("VKService callback secret mismatch", "group_id", evt.GroupID)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	switch evt.Type {
	case "confirmation":
		token := ""
		if s.vkClient != nil {
			token = s.vkClient.ConfirmationToken()
		}
		slog.Info("VKService callback confirmation requested", "group_id", evt.GroupID)
		fmt.Fprint(w, token)
		return
	case "message_new":
		s.handleMessageNew(evt)
	default:
		slog.Debug("VKService ignoring callback event", "type", evt.Type)
	}

	// VK retries delivery unless it sees the literal "ok".
	fmt.Fprint(w, "ok")
}

func (s *VKService) handleMessageNew(evt *vk.Event) {
	msg, err := vk.ParseIncomingMessage(evt)
	if err != nil {
		slog.Error("VKService failed to parse message_new event", "error", err)
		return
	}
	if msg.Text == "" {
		slog.Debug("VKService ignoring empty message", "from_id", msg.FromID)
		return
	}

	userID := strconv.FormatInt(msg.FromID, 10)
	peerID := strconv.FormatInt(msg.PeerID, 10)
	if msg.PeerID == 0 {
		peerID = userID
	}

	s.safeEmit(models.Response{
		Platform:       models.PlatformVK,
		UserID:         userID,
		ConversationID: peerID,
		Body:           msg.Text,
		Time:           msg.Date,
	})
}

func (s *VKService) safeEmit(response models.Response) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("VKService dropping inbound message (service stopped)", "from", response.UserID)
		return
	}

	select {
	case s.responses <- response:
		slog.Debug("VKService emitted inbound message", "from", response.UserID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("VKService responses channel blocked, dropping message", "from", response.UserID)
	}
}
