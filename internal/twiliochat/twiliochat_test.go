package twiliochat

import (
	"context"
	"testing"
)

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without from number")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("whatsapp:+1555")); err != nil {
		t.Fatalf("unexpected error with full config: %v", err)
	}
}

func TestNewClient_EnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "whatsapp:+1555")

	client, err := NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.fromWhats != "whatsapp:+1555" {
		t.Errorf("from number: %q", client.fromWhats)
	}
}

func TestMockClient_Records(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	if err := m.SendMessage(ctx, "79001234567", "привет"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.SendImage(ctx, "79001234567", "https://img.example/cake.png", "торт"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(m.SentMessages) != 1 || m.SentMessages[0].To != "79001234567" {
		t.Errorf("messages: %+v", m.SentMessages)
	}
	if len(m.SentImages) != 1 || m.SentImages[0].Caption != "торт" {
		t.Errorf("images: %+v", m.SentImages)
	}
}
