package messaging

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sweetline/confectioner/internal/models"
	"github.com/sweetline/confectioner/internal/vk"
)

func TestVKService_ImplementsService(t *testing.T) {
	var _ Service = (*VKService)(nil)
}

func newVKServiceWithClient(t *testing.T) *VKService {
	t.Helper()
	client, err := vk.NewClient(
		vk.WithAccessToken("token"),
		vk.WithConfirmationToken("confirm-me"),
		vk.WithSecretKey("s3cret"),
	)
	if err != nil {
		t.Fatalf("failed to build VK client: %v", err)
	}
	return NewVKService(client)
}

func postCallback(t *testing.T, svc *VKService, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/vk", strings.NewReader(body))
	w := httptest.NewRecorder()
	svc.WebhookHandler(w, req)
	return w
}

func TestVKService_WebhookConfirmation(t *testing.T) {
	svc := newVKServiceWithClient(t)

	w := postCallback(t, svc, `{"type":"confirmation","group_id":1,"secret":"s3cret"}`)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "confirm-me" {
		t.Errorf("expected confirmation token echoed, got %q", w.Body.String())
	}
}

func TestVKService_WebhookSecretMismatch(t *testing.T) {
	svc := newVKServiceWithClient(t)

	w := postCallback(t, svc, `{"type":"message_new","group_id":1,"secret":"wrong"}`)
	if w.Code != 403 {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestVKService_WebhookMessageNew(t *testing.T) {
	svc := newVKServiceWithClient(t)

	body := `{"type":"message_new","group_id":1,"secret":"s3cret","object":{"message":{"from_id":123,"peer_id":123,"text":"Хочу торт","date":1766000000}}}`
	w := postCallback(t, svc, body)
	if w.Code != 200 || w.Body.String() != "ok" {
		t.Fatalf("expected 200/ok, got %d %q", w.Code, w.Body.String())
	}

	select {
	case resp := <-svc.Responses():
		if resp.Platform != models.PlatformVK {
			t.Errorf("platform: %q", resp.Platform)
		}
		if resp.UserID != "123" || resp.ConversationID != "123" {
			t.Errorf("ids: %q %q", resp.UserID, resp.ConversationID)
		}
		if resp.Body != "Хочу торт" {
			t.Errorf("body: %q", resp.Body)
		}
	default:
		t.Fatal("expected response emitted, got none")
	}
}

func TestVKService_WebhookIgnoresOtherEvents(t *testing.T) {
	svc := newVKServiceWithClient(t)

	w := postCallback(t, svc, `{"type":"message_reply","group_id":1,"secret":"s3cret","object":{}}`)
	if w.Code != 200 || w.Body.String() != "ok" {
		t.Fatalf("expected 200/ok, got %d %q", w.Code, w.Body.String())
	}
	select {
	case <-svc.Responses():
		t.Fatal("no response should be emitted for ignored events")
	default:
	}
}

func TestVKService_WebhookMalformedBody(t *testing.T) {
	svc := newVKServiceWithClient(t)
	if w := postCallback(t, svc, "not json"); w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestVKService_SendMessageEmptyRecipient(t *testing.T) {
	svc := NewVKService(vk.NewMockClient())
	if err := svc.SendMessage(context.Background(), "", "x"); err != models.ErrEmptyRecipient {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
}
