package messaging

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sweetline/confectioner/internal/avito"
	"github.com/sweetline/confectioner/internal/models"
)

// Polling intervals for the Avito messenger.
const (
	// DefaultAvitoPollInterval is the delay between successful poll cycles.
	DefaultAvitoPollInterval = 30 * time.Second
	// DefaultAvitoErrorBackoff is the delay after a failed poll cycle.
	DefaultAvitoErrorBackoff = 60 * time.Second
)

// AvitoPoller extends Sender with the chat listing calls the polling loop
// needs. *avito.Client satisfies it.
type AvitoPoller interface {
	avito.Sender
	ListChats(ctx context.Context) ([]avito.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]avito.Message, error)
	MarkChatRead(ctx context.Context, chatID string) error
}

// AvitoService implements the Service interface over the Avito messenger API
// using a polling loop.
type AvitoService struct {
	client       AvitoPoller
	responses    chan models.Response
	done         chan struct{}
	pollInterval time.Duration
	errorBackoff time.Duration
	mu           sync.RWMutex
	stopped      bool

	// lastSeen tracks the newest processed message timestamp per chat so a
	// poll cycle only emits messages it has not delivered before.
	lastSeen map[string]int64
}

// AvitoServiceOption configures an AvitoService.
type AvitoServiceOption func(*AvitoService)

// WithPollInterval overrides the delay between poll cycles.
func WithPollInterval(d time.Duration) AvitoServiceOption {
	return func(s *AvitoService) { s.pollInterval = d }
}

// WithErrorBackoff overrides the delay after a failed poll cycle.
func WithErrorBackoff(d time.Duration) AvitoServiceOption {
	return func(s *AvitoService) { s.errorBackoff = d }
}

// NewAvitoService creates a new AvitoService with the given client.
func NewAvitoService(client AvitoPoller, opts ...AvitoServiceOption) *AvitoService {
	service := &AvitoService{
		client:       client,
		responses:    make(chan models.Response, DefaultChannelBufferSize),
		done:         make(chan struct{}),
		pollInterval: DefaultAvitoPollInterval,
		errorBackoff: DefaultAvitoErrorBackoff,
		lastSeen:     make(map[string]int64),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Platform identifies this service as the Avito channel.
func (s *AvitoService) Platform() models.Platform {
	return models.PlatformAvito
}

// Start launches the polling loop.
func (s *AvitoService) Start(ctx context.Context) error {
	go s.pollLoop(ctx)
	slog.Info("AvitoService polling started", "interval", s.pollInterval)
	return nil
}

// Stop terminates the polling loop and closes channels.
func (s *AvitoService) Stop() error {
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

// SendMessage sends a text message into an Avito chat.
func (s *AvitoService) SendMessage(ctx context.Context, conversationID string, body string) error {
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

// SendImage sends an image into an Avito chat.
func (s *AvitoService) SendImage(ctx context.Context, conversationID string, imageURL, caption string) error {
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
func (s *AvitoService) Responses() <-chan models.Response {
	return s.responses
}

// pollLoop fetches new messages on a fixed cadence, stretching the delay
// after errors so a flapping API does not get hammered.
func (s *AvitoService) pollLoop(ctx context.Context) {
	delay := s.pollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("AvitoService poll loop stopping due to context cancellation")
			return
		case <-s.done:
			slog.Debug("AvitoService poll loop stopping")
			return
		case <-timer.C:
		}

		if err := s.pollOnce(ctx); err != nil {
			slog.Warn("AvitoService poll cycle failed, backing off", "error", err, "backoff", s.errorBackoff)
			delay = s.errorBackoff
		} else {
			delay = s.pollInterval
		}
		timer.Reset(delay)
	}
}

// pollOnce fetches chats and emits messages newer than the last seen mark.
func (s *AvitoService) pollOnce(ctx context.Context) error {
	chats, err := s.client.ListChats(ctx)
	if err != nil {
		return err
	}

	for _, chat := range chats {
		last := s.lastSeen[chat.ID]

		// First sighting of a chat: record the current high-water mark and
		// skip the backlog so old conversations do not replay.
		if last == 0 {
			mark := chat.Updated
			if chat.LastMessage != nil && chat.LastMessage.Created > mark {
				mark = chat.LastMessage.Created
			}
			s.lastSeen[chat.ID] = mark
			continue
		}

		if chat.LastMessage != nil && chat.LastMessage.Created <= last {
			continue
		}

		messages, err := s.client.ListMessages(ctx, chat.ID)
		if err != nil {
			slog.Warn("AvitoService failed to fetch chat messages", "chat_id", chat.ID, "error", err)
			continue
		}

		newMark := last
		// Messages arrive newest first; walk backwards so emission order
		// matches arrival order.
		for i := len(messages) - 1; i >= 0; i-- {
			msg := messages[i]
			if msg.Created <= last || msg.Direction == "out" {
				continue
			}
			if msg.Type != "text" || msg.Content.Text == "" {
				if msg.Created > newMark {
					newMark = msg.Created
				}
				continue
			}

			s.safeEmit(models.Response{
				Platform:       models.PlatformAvito,
				UserID:         strconv.FormatInt(msg.AuthorID, 10),
				ConversationID: chat.ID,
				Body:           msg.Content.Text,
				FirstName:      chatUserName(chat, msg.AuthorID),
				Time:           msg.Created,
			})
			if msg.Created > newMark {
				newMark = msg.Created
			}
		}
		s.lastSeen[chat.ID] = newMark

		// Clear the unread marker for everything just processed. Best-effort:
		// a failure only means the chat shows unread until the next cycle.
		if newMark > last {
			if err := s.client.MarkChatRead(ctx, chat.ID); err != nil {
				slog.Warn("AvitoService failed to mark chat read", "chat_id", chat.ID, "error", err)
			}
		}
	}

	return nil
}

func chatUserName(chat avito.Chat, authorID int64) string {
	for _, u := range chat.Users {
		if u.ID == authorID {
			return u.Name
		}
	}
	return ""
}

func (s *AvitoService) safeEmit(response models.Response) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("AvitoService dropping inbound message (service stopped)", "from", response.UserID)
		return
	}

	select {
	case s.responses <- response:
		slog.Debug("AvitoService emitted inbound message", "from", response.UserID, "chat_id", response.ConversationID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("AvitoService responses channel blocked, dropping message", "from", response.UserID)
	}
}
