// Package vk implements a minimal VK Callback API client for community
// messages. Inbound events arrive through the group callback webhook and
// outbound messages go through the messages.send method.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// API constants.
const (
	DefaultAPIBaseURL = "https://api.vk.com/method"
	DefaultAPIVersion = "5.199"
	// DefaultRequestTimeout bounds outbound API calls.
	DefaultRequestTimeout = 15 * time.Second
)

// Sender is the interface for sending messages through VK.
type Sender interface {
	SendMessage(ctx context.Context, peerID string, body string) error
	SendImage(ctx context.Context, peerID string, imageURL, caption string) error
}

// Opts holds configuration options for the VK client.
type Opts struct {
	AccessToken       string
	GroupID           string
	ConfirmationToken string
	SecretKey         string
	APIBaseURL        string
	APIVersion        string
}

// Option defines a configuration option for the VK client.
type Option func(*Opts)

// WithAccessToken sets the community access token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithGroupID sets the community ID events are expected from.
func WithGroupID(id string) Option {
	return func(o *Opts) { o.GroupID = id }
}

// WithConfirmationToken sets the string echoed back on callback confirmation.
func WithConfirmationToken(token string) Option {
	return func(o *Opts) { o.ConfirmationToken = token }
}

// WithSecretKey sets the shared secret expected in callback events.
func WithSecretKey(key string) Option {
	return func(o *Opts) { o.SecretKey = key }
}

// WithAPIBaseURL overrides the VK API endpoint (for tests).
func WithAPIBaseURL(base string) Option {
	return func(o *Opts) { o.APIBaseURL = base }
}

// Client talks to the VK community messages API.
type Client struct {
	httpClient        *http.Client
	accessToken       string
	groupID           string
	confirmationToken string
	secretKey         string
	apiBaseURL        string
	apiVersion        string
	randInt           func() int64
}

// NewClient creates a VK client, falling back to the VK_ACCESS_TOKEN,
// VK_GROUP_ID, VK_CONFIRMATION_TOKEN and VK_SECRET_KEY environment variables
// for unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("VK_ACCESS_TOKEN")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = os.Getenv("VK_GROUP_ID")
	}
	if cfg.ConfirmationToken == "" {
		cfg.ConfirmationToken = os.Getenv("VK_CONFIRMATION_TOKEN")
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = os.Getenv("VK_SECRET_KEY")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("VK access token must be provided")
	}

	slog.Debug("VK client config loaded",
		"GroupID", cfg.GroupID,
		"ConfirmationToken_set", cfg.ConfirmationToken != "",
		"SecretKey_set", cfg.SecretKey != "")

	return &Client{
		httpClient:        &http.Client{Timeout: DefaultRequestTimeout},
		accessToken:       cfg.AccessToken,
		groupID:           cfg.GroupID,
		confirmationToken: cfg.ConfirmationToken,
		secretKey:         cfg.SecretKey,
		apiBaseURL:        cfg.APIBaseURL,
		apiVersion:        cfg.APIVersion,
		randInt:           func() int64 { return rand.Int63() },
	}, nil
}

// ConfirmationToken returns the string to echo on callback confirmation.
func (c *Client) ConfirmationToken() string {
	return c.confirmationToken
}

// VerifySecret reports whether the callback secret matches the configured one.
// An empty configured secret disables the check.
func (c *Client) VerifySecret(secret string) bool {
	return c.secretKey == "" || secret == c.secretKey
}

// apiError mirrors the error object in VK API responses.
type apiError struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

type apiResponse struct {
	Error *apiError `json:"error"`
}

// callMethod performs a VK API method call with form-encoded parameters.
func (c *Client) callMethod(ctx context.Context, method string, params url.Values) error {
	params.Set("access_token", c.accessToken)
	params.Set("v", c.apiVersion)

	endpoint := c.apiBaseURL + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build VK request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("VK request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read VK response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("VK API returned status %d", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to decode VK response: %w", err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("VK API error %d: %s", parsed.Error.ErrorCode, parsed.Error.ErrorMsg)
	}
	return nil
}

// SendMessage sends a text message to the given peer.
func (c *Client) SendMessage(ctx context.Context, peerID string, body string) error {
	params := url.Values{}
	params.Set("peer_id", peerID)
	params.Set("message", body)
	params.Set("random_id", strconv.FormatInt(c.randInt(), 10))

	if err := c.callMethod(ctx, "messages.send", params); err != nil {
		slog.Error("VK SendMessage failed", "peer_id", peerID, "error", err)
		return err
	}
	slog.Debug("VK message sent", "peer_id", peerID)
	return nil
}

// SendImage sends an image to the given peer. The image travels as a link in
// the message text because attachment uploads require a server-side photo
// upload flow that community tokens do not always permit.
func (c *Client) SendImage(ctx context.Context, peerID string, imageURL, caption string) error {
	body := caption
	if body != "" {
		body += "\n"
	}
	body += imageURL

	return c.SendMessage(ctx, peerID, body)
}

// Event is a parsed VK callback event.
type Event struct {
	Type    string          `json:"type"`
	GroupID int64           `json:"group_id"`
	Secret  string          `json:"secret"`
	Object  json.RawMessage `json:"object"`
}

// IncomingMessage is the payload of a message_new event.
type IncomingMessage struct {
	FromID int64  `json:"from_id"`
	PeerID int64  `json:"peer_id"`
	Text   string `json:"text"`
	Date   int64  `json:"date"`
}

// ParseEvent decodes a callback event body.
func ParseEvent(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode VK callback event: %w", err)
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("VK callback event missing type")
	}
	return &evt, nil
}

// ParseIncomingMessage decodes the message object of a message_new event.
func ParseIncomingMessage(evt *Event) (*IncomingMessage, error) {
	// The message may be nested under "message" depending on API version.
	var wrapper struct {
		Message *IncomingMessage `json:"message"`
	}
	if err := json.Unmarshal(evt.Object, &wrapper); err == nil && wrapper.Message != nil {
		return wrapper.Message, nil
	}

	var msg IncomingMessage
	if err := json.Unmarshal(evt.Object, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode VK message object: %w", err)
	}
	return &msg, nil
}

// MockClient records sends without network calls (for tests).
type MockClient struct {
	SentMessages []SentMessage
}

type SentMessage struct {
	PeerID string
	Body   string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, peerID string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{PeerID: peerID, Body: body})
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, peerID string, imageURL, caption string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{PeerID: peerID, Body: caption + "\n" + imageURL})
	return nil
}
