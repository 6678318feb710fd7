package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/carebot/internal/app/conversation"
	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// streamEvent is one websocket frame. The first frame is always a snapshot.
type streamEvent struct {
	Type     string            `json:"type"`
	Snapshot *snapshotResponse `json:"snapshot,omitempty"`
	Message  *messageResponse  `json:"message,omitempty"`
	State    *stateResponse    `json:"state,omitempty"`
}

type streamer struct {
	svc      *conversation.Service
	upgrader websocket.Upgrader
}

func newStreamer(svc *conversation.Service, allowedOrigin string) *streamer {
	return &streamer{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

func originChecker(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowed == "*" || origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return origin == allowed || u.Host == r.Host
	}
}

func (st *streamer) handle(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	log := observability.LoggerFromContext(r.Context()).With("session_id", id)

	snap, updates, cancel, err := st.svc.Subscribe(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer cancel()

	conn, err := st.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log.Info("stream opened")
	start := time.Now()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go readPump(conn, stop)

	err = writePump(ctx, conn, snap, updates)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
	default:
		log.Warn("stream write failed", "error", err)
	}
	log.Info("stream closed", "duration_ms", time.Since(start).Milliseconds())
}

// readPump discards client frames; it only tracks liveness and close.
func readPump(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, snap conversation.Snapshot, updates <-chan conversation.Update) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	sr := toSnapshotResponse(snap)
	if err := writeEvent(conn, streamEvent{Type: "snapshot", Snapshot: &sr}); err != nil {
		return err
	}

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, domain.ErrSessionClosed.Error()))
				return nil
			}
			if err := writeEvent(conn, toStreamEvent(u)); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeEvent(conn *websocket.Conn, ev streamEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func toStreamEvent(u conversation.Update) streamEvent {
	state := toStateResponse(u.State)
	ev := streamEvent{Type: string(u.Kind), State: &state}
	if u.Message != nil {
		m := toMessageResponse(u.Message)
		ev.Message = &m
	}
	return ev
}
