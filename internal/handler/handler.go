package handler

// handler.go
import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"regbot/config"
	"regbot/internal/conversation"
	"regbot/internal/domain"
	"regbot/internal/ratelimit"
)

// CallbackPrefix marks inline keyboard callbacks carrying a platform choice.
const CallbackPrefix = "social:"

// EventHandler consumes conversation events.
type EventHandler interface {
	Handle(ctx context.Context, userID int64, ev conversation.Event) conversation.Outcome
}

// UserReader is the read side of the user repository used by the admin API.
type UserReader interface {
	GetUserByID(ctx context.Context, id int64) (*domain.StoredUser, error)
	ListUsers(ctx context.Context, limit int) ([]domain.StoredUser, error)
	CountUsers(ctx context.Context) (int64, error)
}

// ReadinessChecker reports whether storage can accept registrations.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

type Handler struct {
	logger    *zap.Logger
	cfg       *config.Config
	events    EventHandler
	limiter   ratelimit.Limiter
	users     UserReader
	readiness ReadinessChecker
}

func NewHandler(cfg *config.Config, logger *zap.Logger, events EventHandler, limiter ratelimit.Limiter, users UserReader, readiness ReadinessChecker) *Handler {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		events:    events,
		limiter:   limiter,
		users:     users,
		readiness: readiness,
	}
}

// Register wires the registration dialog into the bot.
func (h *Handler) Register(b *bot.Bot) {
	b.RegisterHandlerMatchFunc(isDialogUpdate, h.HandleUpdate, h.RateLimit)
}

// HandleUpdate translates a Telegram update into a dialog event.
func (h *Handler) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	userID, ev, ok := EventFromUpdate(update)
	if !ok {
		return
	}

	if update.CallbackQuery != nil {
		h.answerCallback(ctx, b, update.CallbackQuery.ID)
	}

	outcome := h.events.Handle(ctx, userID, ev)
	h.logger.Debug("Update handled",
		zap.Int64("user_id", userID),
		zap.Stringer("event", ev.Kind),
		zap.Stringer("outcome", outcome))
}

// RateLimit drops updates of users above the configured rate. Limiter
// failures let the update through.
func (h *Handler) RateLimit(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		userID, _, ok := EventFromUpdate(update)
		if !ok {
			next(ctx, b, update)
			return
		}

		allowed, err := h.limiter.Allow(ctx, userID)
		if err != nil {
			h.logger.Warn("Rate limiter unavailable", zap.Int64("user_id", userID), zap.Error(err))
			allowed = true
		}
		if !allowed {
			h.logger.Warn("Update dropped by rate limit", zap.Int64("user_id", userID))
			if update.CallbackQuery != nil {
				h.answerCallback(ctx, b, update.CallbackQuery.ID)
			}
			return
		}

		next(ctx, b, update)
	}
}

func (h *Handler) answerCallback(ctx context.Context, b *bot.Bot, id string) {
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: id}); err != nil {
		h.logger.Warn("Failed to answer callback query", zap.String("callback_id", id), zap.Error(err))
	}
}

func isDialogUpdate(update *models.Update) bool {
	_, _, ok := EventFromUpdate(update)
	return ok
}

// EventFromUpdate maps an update to the user it belongs to and the dialog
// event it represents. Only private chats take part in the dialog.
func EventFromUpdate(update *models.Update) (int64, conversation.Event, bool) {
	if update == nil {
		return 0, conversation.Event{}, false
	}

	if cq := update.CallbackQuery; cq != nil {
		if !strings.HasPrefix(cq.Data, CallbackPrefix) {
			return 0, conversation.Event{}, false
		}
		return cq.From.ID, conversation.Choice(strings.TrimPrefix(cq.Data, CallbackPrefix)), true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" || string(msg.Chat.Type) != "private" {
		return 0, conversation.Event{}, false
	}

	if name, ok := commandName(msg.Text); ok {
		switch name {
		case "start":
			return msg.From.ID, conversation.Start(), true
		case "cancel":
			return msg.From.ID, conversation.Cancel(), true
		}
		return 0, conversation.Event{}, false
	}

	return msg.From.ID, conversation.Text(msg.Text), true
}

// commandName extracts "start" from "/start", "/start@bot" or "/start payload".
func commandName(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(name, " \n"); i >= 0 {
		name = name[:i]
	}
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), true
}
