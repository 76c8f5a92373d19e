package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"regbot/internal/domain"
)

type fakeGateway struct {
	mu      sync.Mutex
	records []domain.UserRecord
	calls   int
	err     error
	block   chan struct{}
}

func (g *fakeGateway) Insert(ctx context.Context, rec domain.UserRecord) (int64, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			g.mu.Lock()
			g.calls++
			g.mu.Unlock()
			return 0, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return 0, g.err
	}
	g.records = append(g.records, rec)
	return int64(len(g.records)), nil
}

func (g *fakeGateway) stored() []domain.UserRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.UserRecord(nil), g.records...)
}

type sentMessage struct {
	kind    ReplyKind
	text    string
	options []string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent map[int64][]sentMessage
	err  error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{sent: make(map[int64][]sentMessage)}
}

func (m *fakeMessenger) record(chatID int64, msg sentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[chatID] = append(m.sent[chatID], msg)
	return m.err
}

func (m *fakeMessenger) Prompt(_ context.Context, chatID int64, text string) error {
	return m.record(chatID, sentMessage{kind: ReplyPrompt, text: text})
}

func (m *fakeMessenger) PromptChoice(_ context.Context, chatID int64, text string, options []string) error {
	return m.record(chatID, sentMessage{kind: ReplyChoices, text: text, options: options})
}

func (m *fakeMessenger) Notify(_ context.Context, chatID int64, text string) error {
	return m.record(chatID, sentMessage{kind: ReplyNotify, text: text})
}

func (m *fakeMessenger) messages(chatID int64) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent[chatID]...)
}

func (m *fakeMessenger) last(chatID int64) sentMessage {
	msgs := m.messages(chatID)
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}

func newTestController(g Gateway, m Messenger, opts Options) *Controller {
	if opts.Platforms == nil {
		opts.Platforms = testPlatforms
	}
	return NewController(zap.NewNop(), g, m, NewRegistry(), opts)
}

func fullDialog(prefix string) []Event {
	return []Event{
		Start(),
		Text(prefix + "Ivan"),
		Text(prefix + "Petrov"),
		Text(prefix + "Ivanovich"),
		Text(prefix + "+1000000"),
		Text(prefix + "+2000000"),
		Text(prefix + "Acme"),
		Choice("Telegram"),
		Text(prefix + "@ivan"),
	}
}

func TestController_EndToEnd(t *testing.T) {
	g := &fakeGateway{}
	m := newFakeMessenger()
	c := newTestController(g, m, Options{})
	ctx := context.Background()

	var outcomes []Outcome
	for _, ev := range fullDialog("") {
		outcomes = append(outcomes, c.Handle(ctx, 1, ev))
	}

	require.Equal(t, OutcomeStarted, outcomes[0])
	for _, o := range outcomes[1 : len(outcomes)-1] {
		require.Equal(t, OutcomeAdvanced, o)
	}
	require.Equal(t, OutcomeCompleted, outcomes[len(outcomes)-1])

	require.Equal(t, []domain.UserRecord{{
		FirstName:           "Ivan",
		LastName:            "Petrov",
		Patronymic:          "Ivanovich",
		CustomerPhone:       "+1000000",
		ContactPhone:        "+2000000",
		OrganizationName:    "Acme",
		SocialMediaPlatform: "Telegram",
		SocialMediaHandle:   "@ivan",
	}}, g.stored())

	msgs := m.messages(1)
	require.Len(t, msgs, 9)
	require.Equal(t, DefaultTexts().Welcome, msgs[0].text)
	require.Equal(t, ReplyChoices, msgs[6].kind)
	require.Equal(t, testPlatforms, msgs[6].options)
	require.Equal(t, "Вы выбрали: Telegram. Теперь введите ваш ник или ID.", msgs[7].text)
	require.Equal(t, sentMessage{kind: ReplyNotify, text: DefaultTexts().Completed}, msgs[8])

	_, active := c.Sessions().Snapshot(1)
	require.False(t, active)
	require.Equal(t, 0, c.Sessions().Len())

	require.Equal(t, OutcomeIgnored, c.Handle(ctx, 1, Text("late")))
	require.Len(t, g.stored(), 1)
}

func TestController_CancelAtEveryState(t *testing.T) {
	dialog := fullDialog("")
	for cut := 1; cut < len(dialog); cut++ {
		t.Run(fmt.Sprintf("after_%d_events", cut), func(t *testing.T) {
			g := &fakeGateway{}
			m := newFakeMessenger()
			c := newTestController(g, m, Options{})
			ctx := context.Background()

			for _, ev := range dialog[:cut] {
				c.Handle(ctx, 5, ev)
			}
			require.Equal(t, OutcomeCancelled, c.Handle(ctx, 5, Cancel()))
			require.Equal(t, DefaultTexts().Cancelled, m.last(5).text)

			_, active := c.Sessions().Snapshot(5)
			require.False(t, active)
			require.Empty(t, g.stored())
			require.Zero(t, g.calls)

			require.Equal(t, OutcomeIgnored, c.Handle(ctx, 5, Cancel()))
		})
	}
}

func TestController_StartThenCancel(t *testing.T) {
	g := &fakeGateway{}
	c := newTestController(g, newFakeMessenger(), Options{})
	ctx := context.Background()

	require.Equal(t, OutcomeStarted, c.Handle(ctx, 1, Start()))
	require.Equal(t, OutcomeCancelled, c.Handle(ctx, 1, Cancel()))
	require.Equal(t, 0, c.Sessions().Len())
	require.Empty(t, g.stored())
}

func TestController_InsertFailure(t *testing.T) {
	g := &fakeGateway{err: errors.New("dial tcp 10.0.0.1:3306: connection refused")}
	m := newFakeMessenger()
	c := newTestController(g, m, Options{AdminChatID: 99})
	ctx := context.Background()

	var last Outcome
	for _, ev := range fullDialog("") {
		last = c.Handle(ctx, 1, ev)
	}

	require.Equal(t, OutcomeFailed, last)
	require.Equal(t, 1, g.calls)
	require.Empty(t, g.stored())
	require.Equal(t, 0, c.Sessions().Len())

	failures := 0
	for _, msg := range m.messages(1) {
		require.NotContains(t, msg.text, "connection refused")
		if msg.text == DefaultTexts().Failed {
			failures++
		}
	}
	require.Equal(t, 1, failures)
	require.Empty(t, m.messages(99))

	require.Equal(t, OutcomeIgnored, c.Handle(ctx, 1, Text("@ivan")))
	require.Equal(t, 1, g.calls)
}

func TestController_InsertTimeout(t *testing.T) {
	g := &fakeGateway{block: make(chan struct{})}
	m := newFakeMessenger()
	c := newTestController(g, m, Options{InsertTimeout: 20 * time.Millisecond})

	var last Outcome
	for _, ev := range fullDialog("") {
		last = c.Handle(context.Background(), 1, ev)
	}
	require.Equal(t, OutcomeFailed, last)
	require.Equal(t, DefaultTexts().Failed, m.last(1).text)
}

func TestController_AdminNotice(t *testing.T) {
	g := &fakeGateway{}
	m := newFakeMessenger()
	c := newTestController(g, m, Options{AdminChatID: 99})

	for _, ev := range fullDialog("") {
		c.Handle(context.Background(), 1, ev)
	}

	admin := m.messages(99)
	require.Len(t, admin, 1)
	require.Contains(t, admin[0].text, "#1")
	require.Contains(t, admin[0].text, "Acme")
}

func TestController_RejectedEventsDoNotMutate(t *testing.T) {
	g := &fakeGateway{}
	m := newFakeMessenger()
	c := newTestController(g, m, Options{})
	ctx := context.Background()

	require.Equal(t, OutcomeIgnored, c.Handle(ctx, 1, Text("no session")))
	require.Equal(t, OutcomeIgnored, c.Handle(ctx, 1, Choice("VK")))
	require.Empty(t, m.messages(1))

	for _, ev := range fullDialog("")[:7] {
		c.Handle(ctx, 1, ev)
	}
	before, ok := c.Sessions().Snapshot(1)
	require.True(t, ok)
	require.Equal(t, domain.StateAwaitSocialChoice, before.State)
	sentBefore := len(m.messages(1))

	require.Equal(t, OutcomeIgnored, c.Handle(ctx, 1, Text("Telegram")))
	require.Equal(t, OutcomeIgnored, c.Handle(ctx, 1, Choice("MySpace")))
	require.Equal(t, OutcomeIgnored, c.Handle(ctx, 1, Text("")))

	after, ok := c.Sessions().Snapshot(1)
	require.True(t, ok)
	require.Equal(t, before.State, after.State)
	require.Equal(t, before.Fields, after.Fields)
	require.Len(t, m.messages(1), sentBefore)
}

func TestController_RestartDiscardsInput(t *testing.T) {
	g := &fakeGateway{}
	c := newTestController(g, newFakeMessenger(), Options{})
	ctx := context.Background()

	c.Handle(ctx, 1, Start())
	c.Handle(ctx, 1, Text("Old"))
	c.Handle(ctx, 1, Text("Name"))
	first, _ := c.Sessions().Snapshot(1)

	require.Equal(t, OutcomeStarted, c.Handle(ctx, 1, Start()))
	s, ok := c.Sessions().Snapshot(1)
	require.True(t, ok)
	require.Equal(t, domain.StateAwaitFirstName, s.State)
	require.Empty(t, s.Fields)
	require.NotEqual(t, first.ID, s.ID)
}

func TestController_ConcurrentSessionsAreIsolated(t *testing.T) {
	g := &fakeGateway{}
	m := newFakeMessenger()
	c := newTestController(g, m, Options{})
	ctx := context.Background()

	const users = 20
	var wg sync.WaitGroup
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for _, ev := range fullDialog(fmt.Sprintf("u%d-", userID)) {
				c.Handle(ctx, userID, ev)
			}
		}(u)
	}
	wg.Wait()

	stored := g.stored()
	require.Len(t, stored, users)
	for _, rec := range stored {
		id := strings.TrimSuffix(rec.FirstName, "Ivan")
		require.True(t, strings.HasPrefix(id, "u"), rec.FirstName)
		require.Equal(t, id+"Petrov", rec.LastName)
		require.Equal(t, id+"Acme", rec.OrganizationName)
		require.Equal(t, id+"@ivan", rec.SocialMediaHandle)
	}
	require.Equal(t, 0, c.Sessions().Len())
}

func TestController_MessengerErrorsDoNotStopFlow(t *testing.T) {
	g := &fakeGateway{}
	m := newFakeMessenger()
	m.err = errors.New("telegram unavailable")
	c := newTestController(g, m, Options{})

	var last Outcome
	for _, ev := range fullDialog("") {
		last = c.Handle(context.Background(), 1, ev)
	}
	require.Equal(t, OutcomeCompleted, last)
	require.Len(t, g.stored(), 1)
}

func TestController_RunSweeper(t *testing.T) {
	c := newTestController(&fakeGateway{}, newFakeMessenger(), Options{})
	c.Handle(context.Background(), 1, Start())
	c.Sessions().now = func() time.Time { return time.Now().Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunSweeper(ctx, time.Minute, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Sessions().Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
