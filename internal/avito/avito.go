// Package avito implements a client for the Avito messenger API. Tokens are
// obtained through the OAuth2 client credentials grant and refreshed
// automatically; inbound messages are fetched by polling since Avito offers
// no push channel for this integration.
package avito

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// API constants.
const (
	DefaultAPIBaseURL = "https://api.avito.ru"
	DefaultTokenURL   = "https://api.avito.ru/token"
	// DefaultRequestTimeout bounds individual API calls.
	DefaultRequestTimeout = 15 * time.Second
)

// Sender is the interface for sending messages through Avito.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, body string) error
	SendImage(ctx context.Context, chatID string, imageURL, caption string) error
}

// Opts holds configuration options for the Avito client.
type Opts struct {
	ClientID     string
	ClientSecret string
	AccountID    string
	APIBaseURL   string
	TokenURL     string
}

// Option defines a configuration option for the Avito client.
type Option func(*Opts)

// WithClientID sets the OAuth2 client ID.
func WithClientID(id string) Option {
	return func(o *Opts) { o.ClientID = id }
}

// WithClientSecret sets the OAuth2 client secret.
func WithClientSecret(secret string) Option {
	return func(o *Opts) { o.ClientSecret = secret }
}

// WithAccountID sets the Avito account the messenger endpoints address.
func WithAccountID(id string) Option {
	return func(o *Opts) { o.AccountID = id }
}

// WithAPIBaseURL overrides the API endpoint (for tests).
func WithAPIBaseURL(base string) Option {
	return func(o *Opts) { o.APIBaseURL = base }
}

// WithTokenURL overrides the token endpoint (for tests).
func WithTokenURL(tokenURL string) Option {
	return func(o *Opts) { o.TokenURL = tokenURL }
}

// Client talks to the Avito messenger API.
type Client struct {
	httpClient *http.Client
	accountID  string
	apiBaseURL string
}

// NewClient creates an Avito client, falling back to the AVITO_CLIENT_ID,
// AVITO_CLIENT_SECRET and AVITO_ACCOUNT_ID environment variables for unset
// options. The underlying HTTP client refreshes the access token before
// expiry without further intervention.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("AVITO_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = os.Getenv("AVITO_CLIENT_SECRET")
	}
	if cfg.AccountID == "" {
		cfg.AccountID = os.Getenv("AVITO_ACCOUNT_ID")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client ID and client secret must be provided")
	}
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("account ID must be provided")
	}

	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	httpClient := oauthCfg.Client(ctx)
	httpClient.Timeout = DefaultRequestTimeout

	slog.Debug("Avito client config loaded", "AccountID", cfg.AccountID)

	return &Client{
		httpClient: httpClient,
		accountID:  cfg.AccountID,
		apiBaseURL: cfg.APIBaseURL,
	}, nil
}

// Chat is a conversation in the Avito messenger.
type Chat struct {
	ID          string   `json:"id"`
	Users       []User   `json:"users"`
	LastMessage *Message `json:"last_message"`
	Updated     int64    `json:"updated"`
}

// User is a chat participant.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Message is a single messenger message.
type Message struct {
	ID        string         `json:"id"`
	AuthorID  int64          `json:"author_id"`
	Content   MessageContent `json:"content"`
	Created   int64          `json:"created"`
	Direction string         `json:"direction"`
	Type      string         `json:"type"`
}

// MessageContent holds the typed payload of a message.
type MessageContent struct {
	Text string `json:"text"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode Avito request: %w", err)
		}
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build Avito request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Avito request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Avito response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Avito API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode Avito response: %w", err)
		}
	}
	return nil
}

// ListChats fetches recent chats for the configured account.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var out struct {
		Chats []Chat `json:"chats"`
	}
	path := fmt.Sprintf("/messenger/v2/accounts/%s/chats?unread_only=false", c.accountID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// ListMessages fetches messages of a chat, newest first.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	path := fmt.Sprintf("/messenger/v3/accounts/%s/chats/%s/messages/", c.accountID, chatID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// MarkChatRead marks a chat as read so polled messages stop showing unread.
func (c *Client) MarkChatRead(ctx context.Context, chatID string) error {
	path := fmt.Sprintf("/messenger/v1/accounts/%s/chats/%s/read", c.accountID, chatID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// SendMessage sends a text message into a chat.
func (c *Client) SendMessage(ctx context.Context, chatID string, body string) error {
	payload := map[string]any{
		"message": map[string]string{"text": body},
		"type":    "text",
	}
	path := fmt.Sprintf("/messenger/v1/accounts/%s/chats/%s/messages", c.accountID, chatID)
	if err := c.doJSON(ctx, http.MethodPost, path, payload, nil); err != nil {
		slog.Error("Avito SendMessage failed", "chat_id", chatID, "error", err)
		return err
	}
	slog.Debug("Avito message sent", "chat_id", chatID)
	return nil
}

// SendImage sends an image into a chat. The image travels as a link in the
// message text because image uploads require a separate binary upload flow.
func (c *Client) SendImage(ctx context.Context, chatID string, imageURL, caption string) error {
	body := caption
	if body != "" {
		body += "\n"
	}
	body += imageURL
	return c.SendMessage(ctx, chatID, body)
}

// AccountID returns the configured account ID.
func (c *Client) AccountID() string {
	return c.accountID
}

// MockClient records sends without network calls (for tests).
type MockClient struct {
	SentMessages []SentMessage
	ReadChats    []string
}

type SentMessage struct {
	ChatID string
	Body   string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, chatID string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{ChatID: chatID, Body: body})
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, chatID string, imageURL, caption string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{ChatID: chatID, Body: caption + "\n" + imageURL})
	return nil
}

func (m *MockClient) MarkChatRead(ctx context.Context, chatID string) error {
	m.ReadChats = append(m.ReadChats, chatID)
	return nil
}
