package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sweetline/confectioner/internal/models"
	"github.com/sweetline/confectioner/internal/store"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	s := NewServer(store.NewInMemoryStore())

	w := httptest.NewRecorder()
	s.healthHandler(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeResponse(t, w); resp.Status != string(models.APIStatusOK) {
		t.Errorf("status: %q", resp.Status)
	}

	w = httptest.NewRecorder()
	s.healthHandler(w, httptest.NewRequest("POST", "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", w.Code)
	}
}

func TestOrdersHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	user, _ := st.CreateUser(models.User{Platform: models.PlatformVK, PlatformUserID: "123"})
	_, _ = st.CreateOrder(models.Order{UserID: user.ID, Description: "торт", Weight: 2.5})
	s := NewServer(st)

	w := httptest.NewRecorder()
	s.ordersHandler(w, httptest.NewRequest("GET", "/orders?user_id="+user.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Status != string(models.APIStatusOK) || resp.Result == nil {
		t.Errorf("unexpected response: %+v", resp)
	}

	w = httptest.NewRecorder()
	s.ordersHandler(w, httptest.NewRequest("GET", "/orders", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without user_id, got %d", w.Code)
	}
}

func TestOrderHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	order, _ := st.CreateOrder(models.Order{UserID: "u1", Description: "торт", Weight: 1})
	s := NewServer(st)

	w := httptest.NewRecorder()
	s.orderHandler(w, httptest.NewRequest("GET", "/orders/"+order.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.orderHandler(w, httptest.NewRequest("GET", "/orders/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing order, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.orderHandler(w, httptest.NewRequest("GET", "/orders/", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty ID, got %d", w.Code)
	}
}

func TestWebhookMounting(t *testing.T) {
	called := false
	s := NewServer(store.NewInMemoryStore(), WithVKWebhook(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest("POST", "/webhook/vk", nil))
	if !called {
		t.Error("VK webhook handler not mounted")
	}

	// Unconfigured webhook path is not served.
	w = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest("POST", "/webhook/twilio", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unmounted webhook, got %d", w.Code)
	}
}
