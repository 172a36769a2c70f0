package avito

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer serves a token endpoint plus the given messenger handlers.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":86400}`))
	})
	mux.HandleFunc("/", handler)
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(context.Background(),
		WithClientID("id"),
		WithClientSecret("secret"),
		WithAccountID("42"),
		WithAPIBaseURL(srv.URL),
		WithTokenURL(srv.URL+"/token"),
	)
	if err != nil {
		t.Fatalf("failed to build Avito client: %v", err)
	}
	return client
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("AVITO_CLIENT_ID", "")
	t.Setenv("AVITO_CLIENT_SECRET", "")
	t.Setenv("AVITO_ACCOUNT_ID", "")
	if _, err := NewClient(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(context.Background(), WithClientID("id"), WithClientSecret("s")); err == nil {
		t.Fatal("expected error without account ID")
	}
}

func TestListChats(t *testing.T) {
	var gotAuth, gotPath string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Write([]byte(`{"chats":[{"id":"c1","users":[{"id":5,"name":"Анна"}],"updated":100,"last_message":{"id":"m1","created":100}}]}`))
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	chats, err := client.ListChats(context.Background())
	if err != nil {
		t.Fatalf("ListChats returned error: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != "c1" || chats[0].Users[0].Name != "Анна" {
		t.Errorf("chats: %+v", chats)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer token from client credentials flow, got %q", gotAuth)
	}
	if gotPath != "/messenger/v2/accounts/42/chats" {
		t.Errorf("path: %q", gotPath)
	}
}

func TestListMessages(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[{"id":"m2","author_id":5,"content":{"text":"2,5"},"created":200,"direction":"in","type":"text"}]}`))
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	messages, err := client.ListMessages(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListMessages returned error: %v", err)
	}
	if len(messages) != 1 || messages[0].Content.Text != "2,5" || messages[0].Direction != "in" {
		t.Errorf("messages: %+v", messages)
	}
}

func TestMarkChatRead(t *testing.T) {
	var gotMethod, gotPath string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	if err := client.MarkChatRead(context.Background(), "c1"); err != nil {
		t.Fatalf("MarkChatRead returned error: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/messenger/v1/accounts/42/chats/c1/read" {
		t.Errorf("request: %s %s", gotMethod, gotPath)
	}
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	if err := client.SendMessage(context.Background(), "c1", "Добрый день"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if gotPath != "/messenger/v1/accounts/42/chats/c1/messages" {
		t.Errorf("path: %q", gotPath)
	}
	msg, _ := gotPayload["message"].(map[string]any)
	if msg["text"] != "Добрый день" || gotPayload["type"] != "text" {
		t.Errorf("payload: %+v", gotPayload)
	}
}

func TestSendMessage_APIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"forbidden"}}`, http.StatusForbidden)
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	if err := client.SendMessage(context.Background(), "c1", "x"); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestSendImage_AppendsLink(t *testing.T) {
	var gotPayload map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	if err := client.SendImage(context.Background(), "c1", "https://img.example/cake.png", "Ваш торт"); err != nil {
		t.Fatalf("SendImage returned error: %v", err)
	}
	msg, _ := gotPayload["message"].(map[string]any)
	if msg["text"] != "Ваш торт\nhttps://img.example/cake.png" {
		t.Errorf("payload: %+v", gotPayload)
	}
}
