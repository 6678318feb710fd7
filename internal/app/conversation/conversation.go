package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/observability"
)

const (
	// DefaultResponseDelay staggers the fragments of one response batch.
	DefaultResponseDelay = 500 * time.Millisecond

	subscriberBuffer = 64

	welcomeText      = "👋 Welcome to Healthcare Assistant! I can help you with symptom assessment, health advice, and appointment scheduling. How can I assist you today?"
	errorText        = "❌ Sorry, I encountered an error. Please try again or contact support."
	handoverText     = "🔄 Connecting you with a healthcare professional..."
	appointmentText  = "✅ Appointment confirmed! ID: %s"
	missingAppointID = "unavailable"
)

// InitialQuickReplies are offered right after the welcome message.
var InitialQuickReplies = []domain.QuickReply{
	{Label: "🩺 Report Symptoms", Payload: "/report_symptom"},
	{Label: "📅 Book Appointment", Payload: "/book_appointment"},
	{Label: "💡 Health Advice", Payload: "/ask_health_advice"},
	{Label: "👨‍⚕️ Speak to Human", Payload: "/request_human_handover"},
}

// State is the side-channel state of a conversation.
type State struct {
	QuickReplies []domain.QuickReply
	Triage       *domain.TriageStatus
	Handover     bool
	Connection   domain.ConnectionState
	Busy         bool
	Draft        string
}

// Snapshot is an immutable copy of a conversation for rendering.
type Snapshot struct {
	SessionID domain.SessionID
	Messages  []domain.Message
	State
}

type UpdateKind string

const (
	UpdateMessageAppended UpdateKind = "message_appended"
	UpdateStateChanged    UpdateKind = "state_changed"
)

// Update is pushed to subscribers after each mutation.
type Update struct {
	Kind    UpdateKind
	Message *domain.Message
	State   State
}

// Conversation owns one session. Every mutation runs on its loop goroutine;
// timers and network completions post closures onto it.
type Conversation struct {
	id       domain.SessionID
	dialogue domain.DialogueClient
	messages domain.MessageStore
	signals  domain.SignalPublisher
	now      func() time.Time
	log      *slog.Logger
	probe    bool

	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// loop-owned
	timeline    []domain.Message
	nextSeq     int64
	state       State
	seq         *sequencer
	inFlight    int
	idleWaiters []chan struct{}
	subs        map[int]chan Update
	nextSub     int
}

type conversationConfig struct {
	dialogue domain.DialogueClient
	messages domain.MessageStore
	signals  domain.SignalPublisher
	delay    time.Duration
	now      func() time.Time
	probe    bool
}

func newConversation(id domain.SessionID, cfg conversationConfig) *Conversation {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conversation{
		id:       id,
		dialogue: cfg.dialogue,
		messages: cfg.messages,
		signals:  cfg.signals,
		now:      cfg.now,
		log:      observability.WithFields("session_id", id),
		probe:    cfg.probe,
		ops:      make(chan func()),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    State{Connection: domain.ConnectionUninitialized},
		subs:     make(map[int]chan Update),
	}
	c.seq = newSequencer(cfg.delay, func(fn func()) { c.post(fn) }, c.checkIdle)

	go c.run()
	return c
}

// ID returns the session identifier.
func (c *Conversation) ID() domain.SessionID { return c.id }

func (c *Conversation) run() {
	defer close(c.done)
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.ctx.Done():
			c.teardown()
			return
		}
	}
}

// post queues fn on the loop without waiting. It reports false once the
// conversation is closed. Never call it from the loop itself.
func (c *Conversation) post(fn func()) bool {
	select {
	case c.ops <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// do runs fn on the loop and waits for it.
func (c *Conversation) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.ops <- func() { defer close(finished); fn() }:
	case <-c.ctx.Done():
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (c *Conversation) teardown() {
	c.seq.stop()
	for _, w := range c.idleWaiters {
		close(w)
	}
	c.idleWaiters = nil
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.log.Info("conversation closed", "messages", len(c.timeline))
}

// Close stops pending insertions, cancels an in-flight request and ends the loop.
// Later calls return ErrSessionClosed.
func (c *Conversation) Close() {
	c.once.Do(c.cancel)
	<-c.done
}

// Start appends the welcome message and offers the initial quick replies.
// It is a no-op on an already started conversation.
func (c *Conversation) Start(ctx context.Context) error {
	return c.do(ctx, func() {
		if c.state.Connection != domain.ConnectionUninitialized || len(c.timeline) > 0 {
			return
		}

		c.appendMessage(domain.Message{Origin: domain.OriginBot, Body: welcomeText})
		c.state.QuickReplies = append([]domain.QuickReply(nil), InitialQuickReplies...)

		prober, ok := c.dialogue.(domain.DialogueProber)
		if !c.probe || !ok {
			c.state.Connection = domain.ConnectionConnected
			c.emitState()
			return
		}

		c.inFlight++
		c.emitState()
		go func() {
			err := prober.Probe(c.ctx)
			c.post(func() {
				c.inFlight--
				c.applyProbe(err)
				c.checkIdle()
			})
		}()
	})
}

// Probe checks the dialogue server and updates the connection state.
func (c *Conversation) Probe(ctx context.Context) (domain.ConnectionState, error) {
	var probeErr error
	if prober, ok := c.dialogue.(domain.DialogueProber); ok {
		probeErr = prober.Probe(ctx)
	}

	var state domain.ConnectionState
	if err := c.do(ctx, func() {
		c.applyProbe(probeErr)
		state = c.state.Connection
	}); err != nil {
		return "", err
	}
	return state, probeErr
}

func (c *Conversation) applyProbe(err error) {
	if err != nil {
		c.log.Warn("dialogue server probe failed", "error", err)
		c.state.Connection = domain.ConnectionDisconnected
	} else {
		c.state.Connection = domain.ConnectionConnected
	}
	c.emitState()
}

// Snapshot copies the conversation state.
func (c *Conversation) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() { snap = c.snapshot() })
	return snap, err
}

func (c *Conversation) snapshot() Snapshot {
	return Snapshot{
		SessionID: c.id,
		Messages:  append([]domain.Message(nil), c.timeline...),
		State:     c.copyState(),
	}
}

func (c *Conversation) copyState() State {
	s := c.state
	s.QuickReplies = append([]domain.QuickReply(nil), c.state.QuickReplies...)
	if c.state.Triage != nil {
		t := *c.state.Triage
		s.Triage = &t
	}
	return s
}

// Subscribe returns the current snapshot and a stream of later updates.
// Updates are dropped for a subscriber that falls behind; cancel releases it.
func (c *Conversation) Subscribe(ctx context.Context) (Snapshot, <-chan Update, func(), error) {
	var (
		snap Snapshot
		ch   chan Update
		id   int
	)
	err := c.do(ctx, func() {
		snap = c.snapshot()
		ch = make(chan Update, subscriberBuffer)
		id = c.nextSub
		c.nextSub++
		c.subs[id] = ch
	})
	if err != nil {
		return Snapshot{}, nil, func() {}, err
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.post(func() {
				if sub, ok := c.subs[id]; ok {
					close(sub)
					delete(c.subs, id)
				}
			})
		})
	}
	return snap, ch, cancel, nil
}

// SetDraft stores the pending input text.
func (c *Conversation) SetDraft(ctx context.Context, text string) error {
	return c.do(ctx, func() {
		c.state.Draft = text
		c.emitState()
	})
}

// WaitIdle returns once no request is in flight and no insertion is pending.
func (c *Conversation) WaitIdle(ctx context.Context) error {
	ch := make(chan struct{})
	if err := c.do(ctx, func() {
		if c.idle() {
			close(ch)
			return
		}
		c.idleWaiters = append(c.idleWaiters, ch)
	}); err != nil {
		return err
	}

	select {
	case <-ch:
		if c.ctx.Err() != nil {
			return domain.ErrSessionClosed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conversation) idle() bool {
	return c.inFlight == 0 && c.seq.pending() == 0
}

func (c *Conversation) checkIdle() {
	if !c.idle() {
		return
	}
	for _, w := range c.idleWaiters {
		close(w)
	}
	c.idleWaiters = nil
}

// appendMessage stamps and records msg, mirrors it to the message store and
// notifies subscribers.
func (c *Conversation) appendMessage(msg domain.Message) domain.Message {
	c.nextSeq++
	msg.ID = newMessageID()
	msg.SessionID = c.id
	msg.Seq = c.nextSeq
	msg.CreatedAt = c.now()

	c.timeline = append(c.timeline, msg)

	stored := msg
	if err := c.messages.AppendMessage(c.ctx, &stored); err != nil {
		c.log.Error("failed to persist message", "seq", msg.Seq, "error", err)
	}

	out := msg
	c.broadcast(Update{Kind: UpdateMessageAppended, Message: &out, State: c.copyState()})
	return msg
}

func (c *Conversation) emitState() {
	c.broadcast(Update{Kind: UpdateStateChanged, State: c.copyState()})
}

func (c *Conversation) broadcast(u Update) {
	for id, ch := range c.subs {
		select {
		case ch <- u:
		default:
			c.log.Debug("dropping update for slow subscriber", "subscriber", id, "kind", u.Kind)
		}
	}
}

func (c *Conversation) publish(kind domain.SignalKind, data map[string]any) {
	sig := domain.Signal{Kind: kind, SessionID: c.id, At: c.now(), Data: data}
	if err := c.signals.Publish(c.ctx, sig); err != nil {
		c.log.Warn("failed to publish signal", "kind", kind, "error", err)
	}
}

func newMessageID() domain.MessageID {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.MessageID(uuid.NewString())
	}
	return domain.MessageID(id.String())
}
