package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/observability"
)

type Service struct {
	dialogue     domain.DialogueClient
	sessionStore domain.SessionStore
	messageStore domain.MessageStore
	signals      domain.SignalPublisher
	now          func() time.Time

	responseDelay time.Duration
	probeOnStart  bool

	mu       sync.RWMutex
	sessions map[domain.SessionID]*Conversation

	// recordMu serializes read-modify-write cycles on session records.
	recordMu sync.Mutex
}

type Option func(*Service)

// WithResponseDelay sets the stagger between fragments of one batch.
func WithResponseDelay(d time.Duration) Option {
	return func(s *Service) { s.responseDelay = d }
}

// WithProbeOnStart probes the dialogue server when a session starts.
func WithProbeOnStart(enabled bool) Option {
	return func(s *Service) { s.probeOnStart = enabled }
}

func WithSignalPublisher(p domain.SignalPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.signals = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	dialogue domain.DialogueClient,
	sessionStore domain.SessionStore,
	messageStore domain.MessageStore,
	opts ...Option,
) *Service {
	s := &Service{
		dialogue:      dialogue,
		sessionStore:  sessionStore,
		messageStore:  messageStore,
		signals:       noopPublisher{},
		now:           time.Now,
		responseDelay: DefaultResponseDelay,
		sessions:      make(map[domain.SessionID]*Conversation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type StartSessionOutput struct {
	Session  *domain.Session
	Snapshot Snapshot
}

func (s *Service) StartSession(ctx context.Context) (*StartSessionOutput, error) {
	now := s.now()
	session := &domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		CreatedAt: now,
		UpdatedAt: now,
	}

	log := observability.LoggerFromContext(ctx).With("session_id", session.ID)
	log.Info("starting new session")

	if err := s.sessionStore.CreateSession(ctx, session); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, err
	}

	conv := newConversation(session.ID, conversationConfig{
		dialogue: s.dialogue,
		messages: s.messageStore,
		signals:  s.signals,
		delay:    s.responseDelay,
		now:      s.now,
		probe:    s.probeOnStart,
	})

	if err := conv.Start(ctx); err != nil {
		conv.Close()
		log.Error("failed to start conversation", "error", err)
		return nil, err
	}

	snap, err := conv.Snapshot(ctx)
	if err != nil {
		conv.Close()
		return nil, err
	}

	s.mu.Lock()
	s.sessions[session.ID] = conv
	s.mu.Unlock()

	log.Info("session started")
	return &StartSessionOutput{Session: session, Snapshot: snap}, nil
}

// Conversation returns the live conversation for id.
func (s *Service) Conversation(id domain.SessionID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return conv, nil
}

type SendMessageInput struct {
	SessionID domain.SessionID
	Text      string
	Payload   string
}

type SendMessageOutput struct {
	// UserMessage is nil when the input was empty and nothing was sent.
	UserMessage *domain.Message
}

func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	return s.send(ctx, in.SessionID, "send message", func(c *Conversation) (*domain.Message, error) {
		return c.Send(ctx, in.Text, in.Payload)
	})
}

func (s *Service) SelectQuickReply(ctx context.Context, id domain.SessionID, qr domain.QuickReply) (*SendMessageOutput, error) {
	return s.send(ctx, id, "select quick reply", func(c *Conversation) (*domain.Message, error) {
		return c.Select(ctx, qr)
	})
}

func (s *Service) SelectButton(ctx context.Context, id domain.SessionID, b domain.Button) (*SendMessageOutput, error) {
	return s.send(ctx, id, "select button", func(c *Conversation) (*domain.Message, error) {
		return c.SelectButton(ctx, b)
	})
}

func (s *Service) Emergency(ctx context.Context, id domain.SessionID) (*SendMessageOutput, error) {
	return s.send(ctx, id, "emergency", func(c *Conversation) (*domain.Message, error) {
		return c.Emergency(ctx)
	})
}

func (s *Service) Feedback(ctx context.Context, id domain.SessionID) (*SendMessageOutput, error) {
	return s.send(ctx, id, "feedback", func(c *Conversation) (*domain.Message, error) {
		return c.Feedback(ctx)
	})
}

func (s *Service) send(
	ctx context.Context,
	id domain.SessionID,
	action string,
	fn func(*Conversation) (*domain.Message, error),
) (*SendMessageOutput, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", id, "action", action)

	conv, err := s.Conversation(id)
	if err != nil {
		return nil, err
	}

	msg, err := fn(conv)
	if err != nil {
		if errors.Is(err, domain.ErrBusy) {
			log.Info("rejected while a request is in flight")
		} else {
			log.Error("failed to send", "error", err)
		}
		return nil, err
	}
	if msg == nil {
		log.Debug("ignored empty input")
		return &SendMessageOutput{}, nil
	}

	s.touch(ctx, id)
	log.Info("message sent", "message_id", msg.ID)
	return &SendMessageOutput{UserMessage: msg}, nil
}

// touch bumps UpdatedAt. Sessions already ended are left alone so their
// EndedAt stamp is never overwritten.
func (s *Service) touch(ctx context.Context, id domain.SessionID) {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	if _, err := s.Conversation(id); err != nil {
		return
	}
	session, err := s.sessionStore.GetSession(ctx, id)
	if err != nil {
		return
	}
	session.UpdatedAt = s.now()
	if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to update session", "session_id", id, "error", err)
	}
}

func (s *Service) Snapshot(ctx context.Context, id domain.SessionID) (Snapshot, error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return Snapshot{}, err
	}
	return conv.Snapshot(ctx)
}

func (s *Service) Subscribe(ctx context.Context, id domain.SessionID) (Snapshot, <-chan Update, func(), error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return Snapshot{}, nil, func() {}, err
	}
	return conv.Subscribe(ctx)
}

func (s *Service) SetDraft(ctx context.Context, id domain.SessionID, text string) error {
	conv, err := s.Conversation(id)
	if err != nil {
		return err
	}
	return conv.SetDraft(ctx, text)
}

func (s *Service) WaitIdle(ctx context.Context, id domain.SessionID) error {
	conv, err := s.Conversation(id)
	if err != nil {
		return err
	}
	return conv.WaitIdle(ctx)
}

func (s *Service) Probe(ctx context.Context, id domain.SessionID) (domain.ConnectionState, error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return "", err
	}
	return conv.Probe(ctx)
}

// GetSessionTimeline reads from the stores, so it also serves ended sessions.
func (s *Service) GetSessionTimeline(
	ctx context.Context,
	sessionID domain.SessionID,
	limit int,
) (*domain.Session, []*domain.Message, error) {

	log := observability.LoggerFromContext(ctx).With(
		"session_id", sessionID,
		"limit", limit,
	)

	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		log.Error("failed to get session", "error", err)
		return nil, nil, err
	}

	msgs, err := s.messageStore.GetMessagesBySession(ctx, sessionID, limit)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return nil, nil, err
	}

	log.Info("fetched session timeline", "message_count", len(msgs))

	return session, msgs, nil
}

// EndSession closes the live conversation and marks the session ended.
func (s *Service) EndSession(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	conv, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	conv.Close()

	log := observability.LoggerFromContext(ctx).With("session_id", id)

	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	session, err := s.sessionStore.GetSession(ctx, id)
	if err != nil {
		log.Error("failed to load ended session", "error", err)
		return err
	}
	now := s.now()
	session.UpdatedAt = now
	session.EndedAt = &now
	if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
		log.Error("failed to mark session ended", "error", err)
		return err
	}

	log.Info("session ended")
	return nil
}

// Close tears down every live conversation.
func (s *Service) Close() {
	s.mu.Lock()
	convs := make([]*Conversation, 0, len(s.sessions))
	for id, c := range s.sessions {
		convs = append(convs, c)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range convs {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Signal) error { return nil }
