package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/carebot/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (CAREBOT_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) messageDoc(sessionID domain.SessionID, msgID domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(string(msgID))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	CreatedAt time.Time  `firestore:"created_at"`
	UpdatedAt time.Time  `firestore:"updated_at"`
	EndedAt   *time.Time `firestore:"ended_at"`
}

type buttonDoc struct {
	Label   string `firestore:"label"`
	Payload string `firestore:"payload"`
}

type messageDoc struct {
	SessionID     string         `firestore:"session_id"`
	Seq           int64          `firestore:"seq"`
	Origin        string         `firestore:"origin"`
	Body          string         `firestore:"body"`
	CreatedAt     time.Time      `firestore:"created_at"`
	Buttons       []buttonDoc    `firestore:"buttons"`
	Attachment    string         `firestore:"attachment"` // JSON envelope, empty when none
	IsError       bool           `firestore:"is_error"`
	IsHandover    bool           `firestore:"is_handover"`
	IsAppointment bool           `firestore:"is_appointment"`
	Data          map[string]any `firestore:"data"`
}

func toMessageDoc(msg *domain.Message) (messageDoc, error) {
	att, err := domain.MarshalAttachment(msg.Attachment)
	if err != nil {
		return messageDoc{}, err
	}

	buttons := make([]buttonDoc, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		buttons = append(buttons, buttonDoc{Label: b.Label, Payload: b.Payload})
	}

	return messageDoc{
		SessionID:     string(msg.SessionID),
		Seq:           msg.Seq,
		Origin:        string(msg.Origin),
		Body:          msg.Body,
		CreatedAt:     msg.CreatedAt,
		Buttons:       buttons,
		Attachment:    string(att),
		IsError:       msg.Flags.IsError,
		IsHandover:    msg.Flags.IsHandover,
		IsAppointment: msg.Flags.IsAppointment,
		Data:          msg.Data,
	}, nil
}

func fromMessageDoc(id string, doc messageDoc) (*domain.Message, error) {
	att, err := domain.UnmarshalAttachment([]byte(doc.Attachment))
	if err != nil && !errors.Is(err, domain.ErrUnknownAttachment) {
		return nil, err
	}

	var buttons []domain.Button
	for _, b := range doc.Buttons {
		buttons = append(buttons, domain.Button{Label: b.Label, Payload: b.Payload})
	}

	var data domain.CustomData
	if doc.Data != nil {
		data = domain.CustomData(doc.Data)
	}

	return &domain.Message{
		ID:         domain.MessageID(id),
		SessionID:  domain.SessionID(doc.SessionID),
		Seq:        doc.Seq,
		Origin:     domain.Origin(doc.Origin),
		Body:       doc.Body,
		CreatedAt:  doc.CreatedAt,
		Buttons:    buttons,
		Attachment: att,
		Flags: domain.MessageFlags{
			IsError:       doc.IsError,
			IsHandover:    doc.IsHandover,
			IsAppointment: doc.IsAppointment,
		},
		Data: data,
	}, nil
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	doc := sessionDoc{
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		EndedAt:   session.EndedAt,
	}

	_, err := s.sessionDoc(session.ID).Create(ctx, doc)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("firestore CreateSession %s: session already exists", session.ID)
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	updates := []firestore.Update{
		{Path: "created_at", Value: session.CreatedAt},
		{Path: "updated_at", Value: session.UpdatedAt},
		{Path: "ended_at", Value: session.EndedAt},
	}

	_, err := s.sessionDoc(session.ID).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}

	return &domain.Session{
		ID:        id,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		EndedAt:   doc.EndedAt,
	}, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	doc, err := toMessageDoc(msg)
	if err != nil {
		return fmt.Errorf("firestore AppendMessage encode: %w", err)
	}

	if _, err := s.messageDoc(msg.SessionID, msg.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

// GetMessagesBySession orders by seq; with a limit it reads the newest
// `limit` messages and returns them oldest first.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := s.messagesCol(sessionID).OrderBy("seq", firestore.Asc)
	if limit > 0 {
		q = s.messagesCol(sessionID).OrderBy("seq", firestore.Desc).Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		msg, err := fromMessageDoc(snap.Ref.ID, doc)
		if err != nil {
			return nil, fmt.Errorf("decode message %s: %w", snap.Ref.ID, err)
		}
		out = append(out, msg)
	}

	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}
