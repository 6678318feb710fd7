package domain

import "context"

// DialogueClient defines how the core exchanges one utterance with the dialogue server.
type DialogueClient interface {
	Exchange(ctx context.Context, sender SessionID, message string) ([]Fragment, error)
}

// DialogueProber is implemented by clients that can check reachability
// without sending a conversational turn.
type DialogueProber interface {
	Probe(ctx context.Context) error
}

// SessionStore defines session's persistence
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
}

// MessageStore is the append-only conversation log.
// GetMessagesBySession returns messages in insertion order; limit <= 0 means all,
// otherwise the last `limit` messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessagesBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
}

// SignalPublisher forwards side-channel signals to external collaborators.
type SignalPublisher interface {
	Publish(ctx context.Context, sig Signal) error
}
