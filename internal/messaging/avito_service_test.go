package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetline/confectioner/internal/avito"
	"github.com/sweetline/confectioner/internal/models"
)

// mockAvitoPoller serves canned chats and messages.
type mockAvitoPoller struct {
	*avito.MockClient
	chats    []avito.Chat
	messages map[string][]avito.Message
	listErr  error
}

func (m *mockAvitoPoller) ListChats(ctx context.Context) ([]avito.Chat, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.chats, nil
}

func (m *mockAvitoPoller) ListMessages(ctx context.Context, chatID string) ([]avito.Message, error) {
	return m.messages[chatID], nil
}

func TestAvitoService_ImplementsService(t *testing.T) {
	var _ Service = (*AvitoService)(nil)
}

func TestAvitoService_PollSkipsBacklogOnFirstSighting(t *testing.T) {
	poller := &mockAvitoPoller{
		MockClient: avito.NewMockClient(),
		chats: []avito.Chat{
			{ID: "chat-1", Updated: 100, LastMessage: &avito.Message{Created: 100}},
		},
		messages: map[string][]avito.Message{
			"chat-1": {
				{ID: "m1", AuthorID: 5, Content: avito.MessageContent{Text: "старое"}, Created: 100, Direction: "in", Type: "text"},
			},
		},
	}
	svc := NewAvitoService(poller)

	if err := svc.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce returned error: %v", err)
	}
	select {
	case <-svc.Responses():
		t.Fatal("backlog must not replay on first sighting")
	default:
	}
	if len(poller.ReadChats) != 0 {
		t.Errorf("skipped backlog must not be marked read: %v", poller.ReadChats)
	}
}

func TestAvitoService_PollEmitsNewMessagesInOrder(t *testing.T) {
	poller := &mockAvitoPoller{
		MockClient: avito.NewMockClient(),
		chats: []avito.Chat{
			{
				ID:          "chat-1",
				Users:       []avito.User{{ID: 5, Name: "Анна"}},
				Updated:     100,
				LastMessage: &avito.Message{Created: 100},
			},
		},
	}
	svc := NewAvitoService(poller)

	// First cycle records the high-water mark.
	if err := svc.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce returned error: %v", err)
	}

	// Second cycle sees two new inbound messages (API returns newest first)
	// plus one outbound that must be skipped.
	poller.chats[0].LastMessage = &avito.Message{Created: 300}
	poller.messages = map[string][]avito.Message{
		"chat-1": {
			{ID: "m3", AuthorID: 5, Content: avito.MessageContent{Text: "2,5"}, Created: 300, Direction: "in", Type: "text"},
			{ID: "m2", AuthorID: 9, Content: avito.MessageContent{Text: "ответ кондитера"}, Created: 250, Direction: "out", Type: "text"},
			{ID: "m1", AuthorID: 5, Content: avito.MessageContent{Text: "Хочу торт"}, Created: 200, Direction: "in", Type: "text"},
		},
	}
	if err := svc.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce returned error: %v", err)
	}

	var got []models.Response
	for len(got) < 2 {
		select {
		case resp := <-svc.Responses():
			got = append(got, resp)
		default:
			t.Fatalf("expected 2 responses, got %d", len(got))
		}
	}
	if got[0].Body != "Хочу торт" || got[1].Body != "2,5" {
		t.Errorf("wrong order: %q then %q", got[0].Body, got[1].Body)
	}
	if got[0].UserID != "5" || got[0].ConversationID != "chat-1" || got[0].FirstName != "Анна" {
		t.Errorf("identity fields: %+v", got[0])
	}
	select {
	case resp := <-svc.Responses():
		t.Fatalf("outbound message leaked: %+v", resp)
	default:
	}
	if len(poller.ReadChats) != 1 || poller.ReadChats[0] != "chat-1" {
		t.Errorf("processed chat should be marked read once: %v", poller.ReadChats)
	}

	// Third cycle with no news emits nothing.
	if err := svc.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce returned error: %v", err)
	}
	select {
	case resp := <-svc.Responses():
		t.Fatalf("duplicate emission: %+v", resp)
	default:
	}
}

func TestAvitoService_PollErrorPropagates(t *testing.T) {
	poller := &mockAvitoPoller{MockClient: avito.NewMockClient(), listErr: errors.New("api down")}
	svc := NewAvitoService(poller)
	if err := svc.pollOnce(context.Background()); err == nil {
		t.Fatal("expected error from failed chat listing")
	}
}

func TestAvitoService_SendAfterStop(t *testing.T) {
	svc := NewAvitoService(&mockAvitoPoller{MockClient: avito.NewMockClient()})
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "chat-1", "x"); !errors.Is(err, models.ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
