// Package messaging provides the dispatcher that connects a platform service
// to the dialogue engine.
package messaging

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"

	"github.com/sweetline/confectioner/internal/dialog"
	"github.com/sweetline/confectioner/internal/extract"
	"github.com/sweetline/confectioner/internal/genai"
	"github.com/sweetline/confectioner/internal/models"
	"github.com/sweetline/confectioner/internal/session"
	"github.com/sweetline/confectioner/internal/store"
)

// DefaultWorkerCount is the number of dispatcher workers. Messages hash onto
// workers by conversation key, so one user's messages are processed strictly
// in arrival order while different users proceed in parallel.
const DefaultWorkerCount = 8

// ApologyMessage is the generic user-facing failure message. Any I/O failure
// at the adapter boundary surfaces as this, never as a raw error.
const ApologyMessage = "Произошла ошибка. Пожалуйста, попробуйте позже."

// CakePreviewCaption accompanies the generated cake image sent to the user.
const CakePreviewCaption = "Вот как будет выглядеть ваш торт!"

// AIReplier is the generative backend for genai-kind outbound messages and
// cake previews. The genai.Client satisfies this interface.
type AIReplier interface {
	GenerateReply(ctx context.Context, message string, profile models.UserProfile) (string, error)
	GenerateCakeImage(ctx context.Context, description string, weight *float64, decor string) (string, error)
}

// Dispatcher runs the order dialogue for one platform: it consumes normalized
// incoming messages from a Service, advances the conversation state machine,
// sends the engine's outbound messages and executes its side effects.
type Dispatcher struct {
	svc       Service
	sessions  *session.Store
	store     store.Store
	extractor extract.Extractor
	ai        AIReplier

	// staffConversationID receives new-order notifications; empty disables them.
	staffConversationID string

	workers int
	queues  []chan models.Response
	wg      sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithStaffConversation sets the staff notification conversation for this platform.
func WithStaffConversation(conversationID string) DispatcherOption {
	return func(d *Dispatcher) { d.staffConversationID = conversationID }
}

// WithWorkerCount overrides the number of dispatcher workers.
func WithWorkerCount(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// NewDispatcher creates a dispatcher for the given platform service.
func NewDispatcher(svc Service, sessions *session.Store, st store.Store, extractor extract.Extractor, ai AIReplier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		svc:       svc,
		sessions:  sessions,
		store:     st,
		extractor: extractor,
		ai:        ai,
		workers:   DefaultWorkerCount,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queues = make([]chan models.Response, d.workers)
	for i := range d.queues {
		d.queues[i] = make(chan models.Response, DefaultChannelBufferSize)
	}
	return d
}

// Run starts the platform service and processes its responses until ctx is
// cancelled or the service's response channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("Dispatcher starting", "platform", d.svc.Platform(), "workers", d.workers)
	if err := d.svc.Start(ctx); err != nil {
		return err
	}

	for i := range d.queues {
		d.wg.Add(1)
		go func(queue <-chan models.Response) {
			defer d.wg.Done()
			for resp := range queue {
				d.handleResponse(ctx, resp)
			}
		}(d.queues[i])
	}

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return ctx.Err()
		case resp, ok := <-d.svc.Responses():
			if !ok {
				d.shutdown()
				return nil
			}
			d.queues[d.workerFor(resp)] <- resp
		}
	}
}

func (d *Dispatcher) shutdown() {
	for _, q := range d.queues {
		close(q)
	}
	d.wg.Wait()
	if err := d.svc.Stop(); err != nil {
		slog.Error("Dispatcher service stop failed", "error", err, "platform", d.svc.Platform())
	}
	slog.Info("Dispatcher stopped", "platform", d.svc.Platform())
}

// workerFor hashes the conversation key onto a worker so that per-user
// processing stays sequential.
func (d *Dispatcher) workerFor(resp models.Response) int {
	h := fnv.New32a()
	h.Write([]byte(resp.Platform))
	h.Write([]byte{0})
	h.Write([]byte(resp.UserID))
	return int(h.Sum32() % uint32(d.workers))
}

// handleResponse runs one dialogue turn to completion.
func (d *Dispatcher) handleResponse(ctx context.Context, resp models.Response) {
	key := models.ConversationKey{Platform: resp.Platform, UserID: resp.UserID}
	user := d.ensureUser(resp)
	d.recordInbound(user, resp)

	rec := d.sessions.Get(key)

	// Extraction happens here, outside any state-store critical section, and
	// degrades to zero fields on failure or timeout.
	var extracted models.DraftFields
	if dialog.NeedsExtraction(rec.State) {
		extracted = d.extractor.ExtractOrderFields(ctx, resp.Body)
	}

	result := dialog.Step(rec.State, rec.Draft, dialog.Input{
		Text:      resp.Body,
		Profile:   user.Profile(),
		Extracted: extracted,
	})
	slog.Debug("Dispatcher dialogue step", "platform", resp.Platform, "userID", resp.UserID, "from", rec.State, "to", result.Next)

	// Side effects run before the state is finalized so a failed commit can
	// keep the user on the confirmation step with the draft intact.
	committed, imageURL, commitErr := d.executeEffects(ctx, user, resp, result.Effects)
	if commitErr != nil {
		d.sessions.Put(key, models.StateAwaitingConfirmation, commitDraft(result.Effects))
		d.sendStatic(ctx, resp.ConversationID, ApologyMessage)
		return
	}

	if result.EndSession {
		d.sessions.Reset(key)
	} else {
		d.sessions.Put(key, result.Next, result.Draft)
	}

	d.sendMessages(ctx, user, resp, result.Messages)

	if committed != nil {
		slog.Info("Dispatcher order committed", "orderID", committed.ID, "platform", resp.Platform, "userID", resp.UserID, "image_set", imageURL != "")
	}
}

// ensureUser loads the user for the sender, creating one on first contact.
// Returns nil when persistence is unavailable; the turn still proceeds.
func (d *Dispatcher) ensureUser(resp models.Response) *models.User {
	user, err := d.store.GetUserByPlatformID(resp.Platform, resp.UserID)
	if err != nil {
		slog.Error("Dispatcher user lookup failed", "error", err, "platform", resp.Platform, "userID", resp.UserID)
		return nil
	}
	if user != nil {
		return user
	}
	created, err := d.store.CreateUser(models.User{
		Platform:       resp.Platform,
		PlatformUserID: resp.UserID,
		FirstName:      resp.FirstName,
		LastName:       resp.LastName,
	})
	if err != nil {
		slog.Error("Dispatcher user creation failed", "error", err, "platform", resp.Platform, "userID", resp.UserID)
		return nil
	}
	slog.Info("Dispatcher created user", "id", created.ID, "platform", resp.Platform, "userID", resp.UserID)
	return &created
}

func (d *Dispatcher) recordInbound(user *models.User, resp models.Response) {
	if user == nil {
		return
	}
	_, err := d.store.CreateChatRecord(models.ChatRecord{
		UserID:   user.ID,
		Platform: resp.Platform,
		Message:  resp.Body,
		AIModel:  "user",
	})
	if err != nil {
		slog.Error("Dispatcher inbound chat record failed", "error", err, "userID", user.ID)
	}
}

// executeEffects runs the engine's side effects. A CommitOrder failure is the
// only one reported back; everything downstream of a successful commit
// (image, staff notification) is best-effort.
func (d *Dispatcher) executeEffects(ctx context.Context, user *models.User, resp models.Response, effects []models.SideEffect) (*models.Order, string, error) {
	var committed *models.Order
	var imageURL string
	for _, eff := range effects {
		switch e := eff.(type) {
		case models.CommitOrder:
			order, url, err := d.commitOrder(ctx, user, resp, e.Draft)
			if err != nil {
				slog.Error("Dispatcher order commit failed", "error", err, "platform", resp.Platform, "userID", resp.UserID)
				return nil, "", err
			}
			committed = order
			imageURL = url
		case models.NotifyStaff:
			d.notifyStaff(ctx, committed, e.Draft, imageURL)
		default:
			slog.Warn("Dispatcher ignoring unknown side effect", "platform", resp.Platform)
		}
	}
	return committed, imageURL, nil
}

// commitOrder persists the draft as an order, then best-effort generates a
// cake preview, attaches it to the order and sends it to the user.
func (d *Dispatcher) commitOrder(ctx context.Context, user *models.User, resp models.Response, draft models.OrderDraft) (*models.Order, string, error) {
	if user == nil {
		return nil, "", models.ErrUserNotFound
	}
	if !draft.Complete() {
		return nil, "", models.ErrDraftIncomplete
	}
	order, err := d.store.CreateOrder(models.Order{
		UserID:       user.ID,
		Platform:     resp.Platform,
		Description:  draft.Description,
		Weight:       *draft.Weight,
		Ingredients:  draft.Ingredients,
		DeliveryDate: draft.DeliveryDate,
		Status:       models.OrderStatusPending,
	})
	if err != nil {
		return nil, "", err
	}

	imageURL, err := d.ai.GenerateCakeImage(ctx, draft.Description, draft.Weight, draft.Decor)
	if err != nil {
		slog.Warn("Dispatcher cake image generation failed", "error", err, "orderID", order.ID)
		return &order, "", nil
	}
	if err := d.store.UpdateOrderImage(order.ID, imageURL); err != nil {
		slog.Error("Dispatcher order image update failed", "error", err, "orderID", order.ID)
	} else {
		order.ImageURL = imageURL
	}
	if err := d.svc.SendImage(ctx, resp.ConversationID, imageURL, CakePreviewCaption); err != nil {
		slog.Error("Dispatcher cake preview send failed", "error", err, "orderID", order.ID)
	}
	return &order, imageURL, nil
}

// notifyStaff forwards the order summary to the staff conversation.
func (d *Dispatcher) notifyStaff(ctx context.Context, order *models.Order, draft models.OrderDraft, imageURL string) {
	if d.staffConversationID == "" {
		slog.Debug("Dispatcher staff conversation not configured, skipping notification", "platform", d.svc.Platform())
		return
	}
	summary := staffSummary(d.svc.Platform(), order, draft)
	var err error
	if imageURL != "" {
		err = d.svc.SendImage(ctx, d.staffConversationID, imageURL, summary)
	} else {
		err = d.svc.SendMessage(ctx, d.staffConversationID, summary)
	}
	if err != nil {
		slog.Error("Dispatcher staff notification failed", "error", err, "platform", d.svc.Platform())
	}
}

// sendMessages renders and delivers the engine's outbound messages in order.
// Send failures are logged and the remaining messages still go out.
func (d *Dispatcher) sendMessages(ctx context.Context, user *models.User, resp models.Response, messages []models.OutboundMessage) {
	for _, msg := range messages {
		switch msg.Kind {
		case models.MessageKindStatic:
			d.sendStatic(ctx, resp.ConversationID, msg.Content)
		case models.MessageKindGenAI:
			d.sendGenerated(ctx, user, resp, msg.Content)
		case models.MessageKindImage:
			if err := d.svc.SendImage(ctx, resp.ConversationID, msg.Content, ""); err != nil {
				slog.Error("Dispatcher image send failed", "error", err, "conversationID", resp.ConversationID)
			}
		default:
			slog.Warn("Dispatcher ignoring unknown message kind", "kind", msg.Kind)
		}
	}
}

func (d *Dispatcher) sendStatic(ctx context.Context, conversationID, body string) {
	if err := d.svc.SendMessage(ctx, conversationID, body); err != nil {
		slog.Error("Dispatcher message send failed", "error", err, "conversationID", conversationID)
	}
}

// sendGenerated resolves a genai-kind message through the AI reply layer and
// records the exchange. AI failures degrade to the generic apology.
func (d *Dispatcher) sendGenerated(ctx context.Context, user *models.User, resp models.Response, prompt string) {
	var profile models.UserProfile
	if user != nil {
		profile = user.Profile()
	}
	reply, err := d.ai.GenerateReply(ctx, prompt, profile)
	if err != nil {
		slog.Error("Dispatcher AI reply failed", "error", err, "conversationID", resp.ConversationID)
		reply = ApologyMessage
	} else if user != nil {
		if _, rerr := d.store.CreateChatRecord(models.ChatRecord{
			UserID:   user.ID,
			Platform: resp.Platform,
			Message:  prompt,
			Response: reply,
			AIModel:  genai.ChatModelName,
		}); rerr != nil {
			slog.Error("Dispatcher reply chat record failed", "error", rerr, "userID", user.ID)
		}
	}
	d.sendStatic(ctx, resp.ConversationID, reply)
}

// commitDraft recovers the draft carried by a CommitOrder effect.
func commitDraft(effects []models.SideEffect) models.OrderDraft {
	for _, eff := range effects {
		if e, ok := eff.(models.CommitOrder); ok {
			return e.Draft
		}
	}
	return models.OrderDraft{}
}

// staffSummary renders the new-order notification text.
func staffSummary(platform models.Platform, order *models.Order, draft models.OrderDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 Новый заказ (%s)!\n\n", platform)
	if order != nil {
		fmt.Fprintf(&b, "ID заказа: %s\n", order.ID)
		fmt.Fprintf(&b, "Клиент: %s\n", order.UserID)
	}
	fmt.Fprintf(&b, "Описание: %s\n", draft.Description)
	if draft.Weight != nil {
		fmt.Fprintf(&b, "Вес: %g кг\n", *draft.Weight)
	}
	if len(draft.Ingredients) > 0 {
		fmt.Fprintf(&b, "Ингредиенты: %s\n", strings.Join(draft.Ingredients, ", "))
	}
	if draft.DeliveryDate != "" {
		fmt.Fprintf(&b, "Дата доставки: %s\n", draft.DeliveryDate)
	}
	return b.String()
}
