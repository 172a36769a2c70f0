package messaging

import (
	"context"
	"testing"

	"github.com/sweetline/confectioner/internal/models"
	"github.com/sweetline/confectioner/internal/whatsapp"
)

// Ensure WhatsAppService implements Service interface
func TestWhatsAppService_ImplementsService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
}

func TestWhatsAppService_Platform(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if svc.Platform() != models.PlatformWhatsApp {
		t.Errorf("expected whatsapp platform, got %q", svc.Platform())
	}
}

func TestWhatsAppService_SendMessage(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)

	if err := svc.SendMessage(context.Background(), "79001234567", "привет"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if len(mockClient.SentMessages) != 1 || mockClient.SentMessages[0].Body != "привет" {
		t.Errorf("message not delivered to client: %+v", mockClient.SentMessages)
	}
}

func TestWhatsAppService_SendImage(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)

	if err := svc.SendImage(context.Background(), "79001234567", "https://img.example/cake.png", "торт"); err != nil {
		t.Fatalf("SendImage returned error: %v", err)
	}
	if len(mockClient.SentImages) != 1 || mockClient.SentImages[0].ImageURL != "https://img.example/cake.png" {
		t.Errorf("image not delivered to client: %+v", mockClient.SentImages)
	}
}

// Test Start and Stop do not error and close channels
func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("Responses channel should be closed after Stop")
	}
	// Second Stop is a no-op, not a panic.
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
}

// An emit racing Stop gets dropped by the stopped flag; the channel close is
// delayed so the emit never lands on a closed channel.
func TestWhatsAppService_EmitAfterStopDropped(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	svc.safeEmit(models.Response{Platform: models.PlatformWhatsApp, UserID: "79001234567", Body: "привет"})
	if resp, ok := <-svc.Responses(); ok {
		t.Errorf("message emitted after Stop: %+v", resp)
	}
}
