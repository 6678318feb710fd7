package httpadapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	httpadapter "github.com/PabloGalante/carebot/internal/adapters/http"
	"github.com/PabloGalante/carebot/internal/adapters/storage/memory"
	"github.com/PabloGalante/carebot/internal/app/conversation"
	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/testutil"
)

func newTestServer(t *testing.T) (http.Handler, *conversation.Service, *testutil.FakeDialogue) {
	t.Helper()

	dialogue := testutil.NewFakeDialogue()
	sessionStore := memory.NewSessionStore()
	messageStore := memory.NewMessageStore()

	svc := conversation.NewService(dialogue, sessionStore, messageStore, conversation.WithResponseDelay(0))
	t.Cleanup(svc.Close)

	return httpadapter.NewServer(svc, "*"), svc, dialogue
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
		Snapshot struct {
			Messages []map[string]any `json:"messages"`
			State    struct {
				QuickReplies []map[string]string `json:"quick_replies"`
				Connection   string              `json:"connection"`
			} `json:"state"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.ID == "" || len(resp.Snapshot.Messages) != 1 || len(resp.Snapshot.State.QuickReplies) != 4 {
		t.Fatalf("unexpected create response %s", w.Body.String())
	}
	return resp.Session.ID
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/healthz", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestCreateSessionAndSendMessage(t *testing.T) {
	srv, svc, dialogue := newTestServer(t)
	dialogue.Enqueue(testutil.Reply{Fragments: []domain.Fragment{{
		Text:         "Can you describe the pain?",
		QuickReplies: []domain.QuickReply{{Label: "Sharp", Payload: "/sharp"}},
	}}})

	id := createSession(t, srv)

	w := do(t, srv, http.MethodPost, "/sessions/"+id+"/messages", `{"text":"I have a headache"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"body":"I have a headache"`) {
		t.Fatalf("expected user message in response, got %s", w.Body.String())
	}

	if err := svc.WaitIdle(context.Background(), domain.SessionID(id)); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}

	w = do(t, srv, http.MethodGet, "/sessions/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got struct {
		Live     bool `json:"live"`
		Messages []struct {
			Origin string `json:"origin"`
			Body   string `json:"body"`
		} `json:"messages"`
		State struct {
			QuickReplies []struct {
				Label   string `json:"label"`
				Payload string `json:"payload"`
			} `json:"quick_replies"`
		} `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Live || len(got.Messages) != 3 || got.Messages[2].Body != "Can you describe the pain?" {
		t.Fatalf("unexpected session %s", w.Body.String())
	}
	if len(got.State.QuickReplies) != 1 || got.State.QuickReplies[0].Payload != "/sharp" {
		t.Fatalf("unexpected quick replies %+v", got.State.QuickReplies)
	}
}

func TestSendMessageErrors(t *testing.T) {
	srv, _, dialogue := newTestServer(t)
	id := createSession(t, srv)

	if w := do(t, srv, http.MethodPost, "/sessions/"+id+"/messages", `{"text":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/sessions/"+id+"/messages", `not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/sessions/nope/messages", `{"text":"hi"}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", w.Code)
	}

	dialogue.Hold()
	defer dialogue.Release()
	if w := do(t, srv, http.MethodPost, "/sessions/"+id+"/messages", `{"text":"first"}`); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/sessions/"+id+"/emergency", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while busy, got %d", w.Code)
	}
}

func TestQuickReplyAndButtonRoutes(t *testing.T) {
	srv, svc, dialogue := newTestServer(t)
	id := createSession(t, srv)

	w := do(t, srv, http.MethodPost, "/sessions/"+id+"/quick-replies", `{"label":"Book Appointment","payload":"/book_appointment"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	_ = svc.WaitIdle(context.Background(), domain.SessionID(id))

	w = do(t, srv, http.MethodPost, "/sessions/"+id+"/buttons", `{"label":"Tomorrow","payload":"/slot_tomorrow_am"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	_ = svc.WaitIdle(context.Background(), domain.SessionID(id))

	if w := do(t, srv, http.MethodPost, "/sessions/"+id+"/buttons", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty action, got %d", w.Code)
	}

	calls := dialogue.Calls()
	if len(calls) != 2 || calls[0].Message != "/book_appointment" || calls[1].Message != "/slot_tomorrow_am" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestEndSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)

	if w := do(t, srv, http.MethodDelete, "/sessions/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	w := do(t, srv, http.MethodGet, "/sessions/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for ended session, got %d", w.Code)
	}
	var got struct {
		Live    bool `json:"live"`
		Session struct {
			EndedAt *time.Time `json:"ended_at"`
		} `json:"session"`
		Messages []any `json:"messages"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Live || got.Session.EndedAt == nil || len(got.Messages) != 1 {
		t.Fatalf("unexpected ended session %s", w.Body.String())
	}

	if w := do(t, srv, http.MethodDelete, "/sessions/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/sessions/unknown", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", w.Code)
	}
}

func TestProbeAndDraft(t *testing.T) {
	srv, svc, dialogue := newTestServer(t)
	id := createSession(t, srv)

	dialogue.SetProbeError(domain.ErrNetworkFailure)
	w := do(t, srv, http.MethodPost, "/sessions/"+id+"/probe", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"connection":"disconnected"`) {
		t.Fatalf("unexpected probe response %d %s", w.Code, w.Body.String())
	}

	if w := do(t, srv, http.MethodPut, "/sessions/"+id+"/draft", `{"text":"typing"}`); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	snap, _ := svc.Snapshot(context.Background(), domain.SessionID(id))
	if snap.Draft != "typing" {
		t.Fatalf("expected draft to be stored, got %q", snap.Draft)
	}
}

func TestStreamSendsSnapshotThenUpdates(t *testing.T) {
	handler, _, dialogue := newTestServer(t)
	dialogue.Enqueue(testutil.Reply{Fragments: []domain.Fragment{{Text: "pong"}}})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	id := createSession(t, handler)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first["type"] != "snapshot" {
		t.Fatalf("expected snapshot first, got %v", first["type"])
	}

	if w := do(t, handler, http.MethodPost, "/sessions/"+id+"/messages", `{"text":"ping"}`); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}

	var bodies []string
	for len(bodies) < 2 {
		var ev struct {
			Type    string `json:"type"`
			Message *struct {
				Body string `json:"body"`
			} `json:"message"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if ev.Type == "message_appended" && ev.Message != nil {
			bodies = append(bodies, ev.Message.Body)
		}
	}
	if bodies[0] != "ping" || bodies[1] != "pong" {
		t.Fatalf("expected ping then pong, got %v", bodies)
	}
}
