package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PabloGalante/carebot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS carebot_sessions (
	session_id  TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS carebot_messages (
	message_id     TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL REFERENCES carebot_sessions (session_id),
	seq            BIGINT NOT NULL,
	origin         TEXT NOT NULL,
	body           TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	buttons        JSONB,
	attachment     JSONB,
	is_error       BOOLEAN NOT NULL DEFAULT FALSE,
	is_handover    BOOLEAN NOT NULL DEFAULT FALSE,
	is_appointment BOOLEAN NOT NULL DEFAULT FALSE,
	data           JSONB,
	UNIQUE (session_id, seq)
);
`

const uniqueViolation = "23505"

var ErrSessionExists = errors.New("session already exists")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO carebot_sessions (session_id, created_at, updated_at, ended_at)
		VALUES ($1, $2, $3, $4)
	`, string(session.ID), session.CreatedAt, session.UpdatedAt, session.EndedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE carebot_sessions SET updated_at = $2, ended_at = $3 WHERE session_id = $1
	`, string(session.ID), session.UpdatedAt, session.EndedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT created_at, updated_at, ended_at FROM carebot_sessions WHERE session_id = $1
	`, string(id))

	var (
		createdAt, updatedAt time.Time
		endedAt              *time.Time
	)
	if err := row.Scan(&createdAt, &updatedAt, &endedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &domain.Session{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt, EndedAt: endedAt}, nil
}

type buttonRow struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// messageRow holds the JSONB columns of a message.
type messageRow struct {
	Buttons    []byte
	Attachment []byte
	Data       []byte
}

func encodeMessage(msg *domain.Message) (messageRow, error) {
	var row messageRow

	if len(msg.Buttons) > 0 {
		buttons := make([]buttonRow, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			buttons = append(buttons, buttonRow{Label: b.Label, Payload: b.Payload})
		}
		b, err := json.Marshal(buttons)
		if err != nil {
			return row, fmt.Errorf("encode buttons: %w", err)
		}
		row.Buttons = b
	}

	att, err := domain.MarshalAttachment(msg.Attachment)
	if err != nil {
		return row, fmt.Errorf("encode attachment: %w", err)
	}
	row.Attachment = att

	if msg.Data != nil {
		d, err := json.Marshal(msg.Data)
		if err != nil {
			return row, fmt.Errorf("encode data: %w", err)
		}
		row.Data = d
	}
	return row, nil
}

func decodeMessage(msg *domain.Message, row messageRow) error {
	if len(row.Buttons) > 0 {
		var buttons []buttonRow
		if err := json.Unmarshal(row.Buttons, &buttons); err != nil {
			return fmt.Errorf("decode buttons: %w", err)
		}
		for _, b := range buttons {
			msg.Buttons = append(msg.Buttons, domain.Button{Label: b.Label, Payload: b.Payload})
		}
	}

	att, err := domain.UnmarshalAttachment(row.Attachment)
	switch {
	case errors.Is(err, domain.ErrUnknownAttachment):
		slog.Warn("dropping stored attachment of unknown type", "message_id", msg.ID)
	case err != nil:
		return err
	default:
		msg.Attachment = att
	}

	if len(row.Data) > 0 {
		var data domain.CustomData
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
		msg.Data = data
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	row, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO carebot_messages
			(message_id, session_id, seq, origin, body, created_at, buttons, attachment,
			 is_error, is_handover, is_appointment, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		string(msg.ID), string(msg.SessionID), msg.Seq, string(msg.Origin), msg.Body, msg.CreatedAt,
		row.Buttons, row.Attachment,
		msg.Flags.IsError, msg.Flags.IsHandover, msg.Flags.IsAppointment, row.Data,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	query := `
		SELECT message_id, seq, origin, body, created_at, buttons, attachment,
		       is_error, is_handover, is_appointment, data
		FROM carebot_messages WHERE session_id = $1 ORDER BY seq`
	args := []any{string(sessionID)}
	if limit > 0 {
		query = `SELECT * FROM (` + query + ` DESC LIMIT $2) newest ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var (
			id, origin string
			raw        messageRow
		)
		m := &domain.Message{SessionID: sessionID}
		if err := rows.Scan(&id, &m.Seq, &origin, &m.Body, &m.CreatedAt, &raw.Buttons, &raw.Attachment,
			&m.Flags.IsError, &m.Flags.IsHandover, &m.Flags.IsAppointment, &raw.Data); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = domain.MessageID(id)
		m.Origin = domain.Origin(origin)
		if err := decodeMessage(m, raw); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", id, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
