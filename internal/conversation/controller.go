package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"regbot/internal/domain"
)

// Gateway persists completed registrations.
type Gateway interface {
	Insert(ctx context.Context, rec domain.UserRecord) (int64, error)
}

// Messenger delivers replies to a chat.
type Messenger interface {
	Prompt(ctx context.Context, chatID int64, text string) error
	PromptChoice(ctx context.Context, chatID int64, text string, options []string) error
	Notify(ctx context.Context, chatID int64, text string) error
}

// Outcome reports what Handle did with an event.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeStarted
	OutcomeAdvanced
	OutcomeCompleted
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "ignored"
}

// Options tune the controller.
type Options struct {
	Platforms     []string
	Texts         Texts
	InsertTimeout time.Duration
	// AdminChatID receives a summary of every stored registration when non-zero.
	AdminChatID int64
}

// Controller drives registration sessions.
type Controller struct {
	logger    *zap.Logger
	gateway   Gateway
	messenger Messenger
	sessions  *Registry
	opts      Options
}

func NewController(logger *zap.Logger, gateway Gateway, messenger Messenger, sessions *Registry, opts Options) *Controller {
	if opts.InsertTimeout <= 0 {
		opts.InsertTimeout = 10 * time.Second
	}
	if opts.Texts.Prompts == nil {
		opts.Texts = DefaultTexts()
	}
	return &Controller{
		logger:    logger,
		gateway:   gateway,
		messenger: messenger,
		sessions:  sessions,
		opts:      opts,
	}
}

// Sessions exposes the session registry.
func (c *Controller) Sessions() *Registry {
	return c.sessions
}

// Handle applies ev to the session of userID. Events for sessions of other
// users never touch this session; rejected events change nothing.
func (c *Controller) Handle(ctx context.Context, userID int64, ev Event) Outcome {
	if ev.Kind == EventStart {
		step := Transition(domain.StateInactive, ev, c.opts.Platforms, c.opts.Texts)
		e := c.sessions.start(userID)
		e.mu.Lock()
		defer e.mu.Unlock()

		c.logger.Info("Registration started",
			zap.Int64("user_id", userID),
			zap.String("session_id", e.session.ID))
		c.send(ctx, userID, step.Replies)
		return OutcomeStarted
	}

	e := c.sessions.get(userID)
	if e == nil {
		c.logger.Debug("Event without active session",
			zap.Int64("user_id", userID),
			zap.Stringer("event", ev.Kind))
		return OutcomeIgnored
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return OutcomeIgnored
	}

	s := e.session
	step := Transition(s.State, ev, c.opts.Platforms, c.opts.Texts)

	switch step.Action {
	case ActionCancel:
		c.sessions.remove(userID, e)
		c.logger.Info("Registration cancelled",
			zap.Int64("user_id", userID),
			zap.String("session_id", s.ID),
			zap.Stringer("state", s.State))
		c.send(ctx, userID, step.Replies)
		return OutcomeCancelled

	case ActionAdvance:
		s.Fields[step.Field] = step.Value
		s.State = step.Next
		s.UpdatedAt = c.sessions.now()
		c.logger.Debug("Registration advanced",
			zap.Int64("user_id", userID),
			zap.String("session_id", s.ID),
			zap.String("field", step.Field),
			zap.Stringer("state", s.State))
		c.send(ctx, userID, step.Replies)
		return OutcomeAdvanced

	case ActionPersist:
		s.Fields[step.Field] = step.Value
		s.State = step.Next
		c.sessions.remove(userID, e)
		return c.persist(ctx, userID, s)

	default:
		c.logger.Debug("Event ignored",
			zap.Int64("user_id", userID),
			zap.String("session_id", s.ID),
			zap.Stringer("state", s.State),
			zap.Stringer("event", ev.Kind))
		return OutcomeIgnored
	}
}

// persist makes exactly one insert attempt for a completed session.
func (c *Controller) persist(ctx context.Context, userID int64, s *domain.Session) Outcome {
	rec, err := domain.NewUserRecord(s.Fields)
	if err != nil {
		c.logger.Error("Completed session has an incomplete record",
			zap.Int64("user_id", userID),
			zap.String("session_id", s.ID),
			zap.Error(err))
		c.notify(ctx, userID, c.opts.Texts.Failed)
		return OutcomeFailed
	}

	insertCtx, cancel := context.WithTimeout(ctx, c.opts.InsertTimeout)
	defer cancel()

	id, err := c.gateway.Insert(insertCtx, rec)
	if err != nil {
		c.logger.Error("Failed to store registration",
			zap.Int64("user_id", userID),
			zap.String("session_id", s.ID),
			zap.Error(err))
		c.notify(ctx, userID, c.opts.Texts.Failed)
		return OutcomeFailed
	}

	c.logger.Info("Registration stored",
		zap.Int64("user_id", userID),
		zap.String("session_id", s.ID),
		zap.Int64("record_id", id),
		zap.Duration("took", time.Since(s.StartedAt)))
	c.notify(ctx, userID, c.opts.Texts.Completed)

	if c.opts.AdminChatID != 0 {
		if err := c.messenger.Notify(ctx, c.opts.AdminChatID, AdminNotice(id, rec)); err != nil {
			c.logger.Warn("Failed to notify admin chat",
				zap.Int64("admin_chat_id", c.opts.AdminChatID),
				zap.Error(err))
		}
	}
	return OutcomeCompleted
}

func (c *Controller) send(ctx context.Context, chatID int64, replies []Reply) {
	for _, r := range replies {
		var err error
		switch r.Kind {
		case ReplyChoices:
			err = c.messenger.PromptChoice(ctx, chatID, r.Text, r.Options)
		case ReplyNotify:
			err = c.messenger.Notify(ctx, chatID, r.Text)
		default:
			err = c.messenger.Prompt(ctx, chatID, r.Text)
		}
		if err != nil {
			c.logger.Error("Failed to send reply",
				zap.Int64("chat_id", chatID),
				zap.Error(err))
		}
	}
}

func (c *Controller) notify(ctx context.Context, chatID int64, text string) {
	c.send(ctx, chatID, []Reply{{Kind: ReplyNotify, Text: text}})
}

// RunSweeper periodically drops idle sessions until ctx is done.
func (c *Controller) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	c.logger.Info("started session sweeper", zap.Duration("ttl", ttl))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			if n := c.sessions.Sweep(ttl); n > 0 {
				c.logger.Info("dropped idle sessions", zap.Int("count", n))
			}
		}
	}
}
