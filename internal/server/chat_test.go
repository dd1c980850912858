package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/vaultchat-go/internal/chat"
)

// ---------------------------------------------------------------------------
// Fake Asker for chat handler tests
// ---------------------------------------------------------------------------

// fakeAsker implements the Asker interface for tests. It records questions
// and returns a fixed message.
type fakeAsker struct {
	// reply is returned verbatim from every Ask call.
	reply chat.Message
	// asked accumulates the questions passed to Ask.
	asked []string
}

func (f *fakeAsker) Ask(_ context.Context, question string) chat.Message {
	f.asked = append(f.asked, question)
	return f.reply
}

// newChatTestServer builds a *Server wired with the given session factory
// and a fresh metrics registry so tests stay hermetic.
func newChatTestServer(t *testing.T, factory SessionFactory) *Server {
	t.Helper()
	return &Server{
		newSession: factory,
		sessions:   make(map[string]Asker),
		cfg:        &Config{ChatTimeout: 5 * time.Second},
		log:        slog.Default(),
		metrics:    newServerMetrics(prometheus.NewRegistry()),
	}
}

// singleAsker returns a factory that always hands out the same fake and
// counts how many times it was invoked.
func singleAsker(a Asker, calls *int) SessionFactory {
	return func(string) (Asker, error) {
		*calls++
		return a, nil
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — validation error paths (no session needed)
// ---------------------------------------------------------------------------

func TestHandleChat_MissingMessage(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"session_id":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — happy path and error turns
// ---------------------------------------------------------------------------

func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{reply: chat.Message{
		Role:    chat.RoleAssistant,
		Content: "Restart the pod first.\n\n*Sources: runbook.md*",
	}}
	var calls int
	s := newChatTestServer(t, singleAsker(a, &calls))

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"how do I recover?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != "default" {
		t.Errorf("expected default session, got %q", resp.SessionID)
	}
	if resp.Error {
		t.Error("expected error flag unset on a successful turn")
	}
	if !strings.Contains(resp.Reply, "*Sources: runbook.md*") {
		t.Errorf("expected citation suffix in reply, got %q", resp.Reply)
	}
	if len(a.asked) != 1 || a.asked[0] != "how do I recover?" {
		t.Errorf("expected the raw question to reach the orchestrator, got %v", a.asked)
	}
}

// TestHandleChat_ErrorTurnIs200 verifies that a failed turn still answers
// HTTP 200 — the failure is carried in the message body, matching how the
// orchestrator records error turns in the transcript.
func TestHandleChat_ErrorTurnIs200(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{reply: chat.Message{
		Role:    chat.RoleAssistant,
		Content: "⚠️ Error communicating with the model service: connection refused",
		Err:     true,
	}}
	var calls int
	s := newChatTestServer(t, singleAsker(a, &calls))

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"hello"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Error {
		t.Error("expected error flag set on a failed turn")
	}
	if !strings.Contains(resp.Reply, "connection refused") {
		t.Errorf("expected failure reason in reply, got %q", resp.Reply)
	}
}

// TestHandleChat_SessionReuse verifies that two requests carrying the same
// session ID share one orchestrator while a different ID gets its own.
func TestHandleChat_SessionReuse(t *testing.T) {
	t.Parallel()

	var calls int
	factory := func(sessionID string) (Asker, error) {
		calls++
		return &fakeAsker{reply: chat.Message{Role: chat.RoleAssistant, Content: "ok"}}, nil
	}
	s := newChatTestServer(t, factory)

	post := func(body string) {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
		s.handleChat(httptest.NewRecorder(), req)
	}

	post(`{"session_id":"alpha","message":"one"}`)
	post(`{"session_id":"alpha","message":"two"}`)
	if calls != 1 {
		t.Errorf("expected one session build for repeated ID, got %d", calls)
	}

	post(`{"session_id":"beta","message":"three"}`)
	if calls != 2 {
		t.Errorf("expected a second session build for a new ID, got %d", calls)
	}
}

// TestHandleChat_FactoryError verifies that a failing session factory yields
// 500 rather than a panic or a silent empty reply.
func TestHandleChat_FactoryError(t *testing.T) {
	t.Parallel()

	factory := func(string) (Asker, error) {
		return nil, fmt.Errorf("history store unavailable")
	}
	s := newChatTestServer(t, factory)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"hello"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
