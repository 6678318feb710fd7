package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/PabloGalante/carebot/internal/app/conversation"
	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/observability"
)

type Server struct {
	svc    *conversation.Service
	router chi.Router
	stream *streamer
}

// NewServer builds the BFF router on top of the conversation service.
func NewServer(svc *conversation.Service, allowedOrigin string) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}

	s := &Server{
		svc:    svc,
		router: chi.NewRouter(),
		stream: newStreamer(svc, allowedOrigin),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(withRequestContext)
	s.router.Use(withLogging)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	s.routes()
	return s.router
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Post("/sessions", s.handleCreateSession)
	s.router.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleEndSession)
		r.Get("/messages", s.handleListMessages)
		r.Post("/messages", s.handleSendMessage)
		r.Post("/quick-replies", s.handleSelectQuickReply)
		r.Post("/buttons", s.handleSelectButton)
		r.Post("/emergency", s.handleEmergency)
		r.Post("/feedback", s.handleFeedback)
		r.Post("/probe", s.handleProbe)
		r.Put("/draft", s.handleSetDraft)
		r.Get("/stream", s.stream.handle)
	})
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type sessionResponse struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type actionResponse struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

type attachmentResponse struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type flagsResponse struct {
	IsError       bool `json:"is_error,omitempty"`
	IsHandover    bool `json:"is_handover,omitempty"`
	IsAppointment bool `json:"is_appointment,omitempty"`
}

type messageResponse struct {
	ID         string              `json:"id"`
	SessionID  string              `json:"session_id"`
	Seq        int64               `json:"seq"`
	Origin     string              `json:"origin"`
	Body       string              `json:"body"`
	CreatedAt  time.Time           `json:"created_at"`
	Buttons    []actionResponse    `json:"buttons,omitempty"`
	Attachment *attachmentResponse `json:"attachment,omitempty"`
	Flags      flagsResponse       `json:"flags"`
	Data       map[string]any      `json:"data,omitempty"`
}

type triageResponse struct {
	Priority       string    `json:"priority"`
	Recommendation string    `json:"recommendation"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type stateResponse struct {
	QuickReplies []actionResponse `json:"quick_replies"`
	Triage       *triageResponse  `json:"triage,omitempty"`
	Handover     bool             `json:"handover"`
	Connection   string           `json:"connection"`
	Busy         bool             `json:"busy"`
	Draft        string           `json:"draft"`
}

type snapshotResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []messageResponse `json:"messages"`
	State     stateResponse     `json:"state"`
}

type createSessionResponse struct {
	Session  sessionResponse  `json:"session"`
	Snapshot snapshotResponse `json:"snapshot"`
}

// getSessionResponse carries the live snapshot, or only the stored
// messages once the session has ended.
type getSessionResponse struct {
	SessionID string            `json:"session_id"`
	Live      bool              `json:"live"`
	Session   *sessionResponse  `json:"session,omitempty"`
	Messages  []messageResponse `json:"messages"`
	State     *stateResponse    `json:"state,omitempty"`
}

type sendMessageRequest struct {
	Text    string `json:"text"`
	Payload string `json:"payload,omitempty"`
}

type actionRequest struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

type sendMessageResponse struct {
	UserMessage *messageResponse `json:"user_message,omitempty"`
}

type draftRequest struct {
	Text string `json:"text"`
}

type probeResponse struct {
	Connection string `json:"connection"`
	Error      string `json:"error,omitempty"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.StartSession(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		Session:  toSessionResponse(out.Session),
		Snapshot: toSnapshotResponse(out.Snapshot),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	snap, err := s.svc.Snapshot(r.Context(), id)
	if err == nil {
		sr := toSnapshotResponse(snap)
		writeJSON(w, http.StatusOK, getSessionResponse{
			SessionID: string(id),
			Live:      true,
			Messages:  sr.Messages,
			State:     &sr.State,
		})
		return
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		writeServiceError(w, r, err)
		return
	}

	session, msgs, err := s.svc.GetSessionTimeline(r.Context(), id, 0)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess := toSessionResponse(session)
	writeJSON(w, http.StatusOK, getSessionResponse{
		SessionID: string(id),
		Session:   &sess,
		Messages:  toMessagesResponse(msgs),
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	_, msgs, err := s.svc.GetSessionTimeline(r.Context(), sessionID(r), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": toMessagesResponse(msgs)})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.EndSession(r.Context(), sessionID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.Payload) == "" {
		badRequest(w, "text or payload is required")
		return
	}

	out, err := s.svc.SendMessage(r.Context(), conversation.SendMessageInput{
		SessionID: sessionID(r),
		Text:      req.Text,
		Payload:   req.Payload,
	})
	writeSendResult(w, r, out, err)
}

func (s *Server) handleSelectQuickReply(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	out, err := s.svc.SelectQuickReply(r.Context(), sessionID(r), domain.QuickReply{Label: req.Label, Payload: req.Payload})
	writeSendResult(w, r, out, err)
}

func (s *Server) handleSelectButton(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	out, err := s.svc.SelectButton(r.Context(), sessionID(r), domain.Button{Label: req.Label, Payload: req.Payload})
	writeSendResult(w, r, out, err)
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Emergency(r.Context(), sessionID(r))
	writeSendResult(w, r, out, err)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Feedback(r.Context(), sessionID(r))
	writeSendResult(w, r, out, err)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.Probe(r.Context(), sessionID(r))
	if err != nil && state == "" {
		writeServiceError(w, r, err)
		return
	}

	resp := probeResponse{Connection: string(state)}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := s.svc.SetDraft(r.Context(), sessionID(r), req.Text); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeAction(w http.ResponseWriter, r *http.Request) (actionRequest, bool) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Label) == "" && strings.TrimSpace(req.Payload) == "" {
		badRequest(w, "label or payload is required")
		return req, false
	}
	return req, true
}

func writeSendResult(w http.ResponseWriter, r *http.Request, out *conversation.SendMessageOutput, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var resp sendMessageResponse
	if out.UserMessage != nil {
		m := toMessageResponse(out.UserMessage)
		resp.UserMessage = &m
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func sessionID(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "id"))
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:        string(s.ID),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		EndedAt:   s.EndedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	resp := messageResponse{
		ID:        string(m.ID),
		SessionID: string(m.SessionID),
		Seq:       m.Seq,
		Origin:    string(m.Origin),
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
		Flags: flagsResponse{
			IsError:       m.Flags.IsError,
			IsHandover:    m.Flags.IsHandover,
			IsAppointment: m.Flags.IsAppointment,
		},
		Data: m.Data,
	}
	for _, b := range m.Buttons {
		resp.Buttons = append(resp.Buttons, actionResponse{Label: b.Label, Payload: b.Payload})
	}
	if m.Attachment != nil {
		kind, payload := domain.EncodeAttachment(m.Attachment)
		resp.Attachment = &attachmentResponse{Type: kind, Payload: payload}
	}
	return resp
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toStateResponse(st conversation.State) stateResponse {
	resp := stateResponse{
		QuickReplies: make([]actionResponse, 0, len(st.QuickReplies)),
		Handover:     st.Handover,
		Connection:   string(st.Connection),
		Busy:         st.Busy,
		Draft:        st.Draft,
	}
	for _, q := range st.QuickReplies {
		resp.QuickReplies = append(resp.QuickReplies, actionResponse{Label: q.Label, Payload: q.Payload})
	}
	if st.Triage != nil {
		resp.Triage = &triageResponse{
			Priority:       string(st.Triage.Priority),
			Recommendation: st.Triage.Recommendation,
			UpdatedAt:      st.Triage.UpdatedAt,
		}
	}
	return resp
}

func toSnapshotResponse(snap conversation.Snapshot) snapshotResponse {
	msgs := make([]messageResponse, 0, len(snap.Messages))
	for i := range snap.Messages {
		msgs = append(msgs, toMessageResponse(&snap.Messages[i]))
	}
	return snapshotResponse{
		SessionID: string(snap.SessionID),
		Messages:  msgs,
		State:     toStateResponse(snap.State),
	}
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionClosed):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, domain.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}
