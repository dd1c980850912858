// Package chat implements the conversation orchestrator: it owns the ordered
// message history for a session and runs each user turn through optional
// retrieval and the configured chat model. Service failures never escape a
// turn — they are converted into error-kind assistant messages so the UI
// shell only ever renders messages.
package chat

import "sync"

// Role identifies the author of a session message.
type Role string

const (
	// RoleUser is a message typed by the operator.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model or the orchestrator.
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the session transcript.
type Message struct {
	// Role is the author of the message.
	Role Role

	// Content is the rendered text of the message. For user messages this is
	// always the raw question — augmented prompts are transient and never
	// stored here.
	Content string

	// Err marks an error-kind assistant message (a failed turn). The Content
	// of such a message carries the failure indicator for the UI.
	Err bool
}

// Session owns the ordered, append-only message history for one conversation.
// It is safe for concurrent use; the orchestrator serialises turns but the UI
// may read the transcript while a turn is in flight.
type Session struct {
	mu sync.Mutex

	// id keys the session in the persistence store and the HTTP API.
	id string

	// welcome, when non-empty, is the assistant greeting a fresh or cleared
	// session starts with.
	welcome string

	messages []Message
}

// NewSession creates a session with the given ID and optional welcome message.
func NewSession(id, welcome string) *Session {
	s := &Session{id: id, welcome: welcome}
	s.reset()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Messages returns a copy of the current transcript in chronological order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Append adds a message to the end of the transcript.
func (s *Session) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Clear resets the transcript to its initial state: empty, or a single
// welcome message when one is configured.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// reset re-seeds the transcript. Callers must hold mu (or own the session
// exclusively, as NewSession does).
func (s *Session) reset() {
	s.messages = nil
	if s.welcome != "" {
		s.messages = []Message{{Role: RoleAssistant, Content: s.welcome}}
	}
}
