package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/vaultchat-go/internal/budget"
	"github.com/54b3r/vaultchat-go/internal/logging"
	"github.com/54b3r/vaultchat-go/internal/rag"
	"github.com/54b3r/vaultchat-go/internal/store"
)

// systemPrompt establishes the assistant's behaviour for every conversation.
const systemPrompt = `You are a helpful assistant answering questions about the user's personal
knowledge vault. When context from the vault is provided with a question,
ground your answer in that context and say so when the context does not cover
the question. Keep answers concise and practical. Never invent citations —
source attribution is appended by the application, not by you.`

// errorIndicator prefixes every error-kind assistant message so the UI and
// tests can recognise failed turns.
const errorIndicator = "⚠️"

// completionTimeout bounds a single chat completion call.
const completionTimeout = 60 * time.Second

// Config holds the dependencies required to construct an Orchestrator.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Retriever is the optional retriever for vault context. Nil disables
	// augmentation entirely — no vector-store call is ever made.
	Retriever rag.Retriever

	// RAGTopK controls how many chunks are retrieved per turn.
	// Defaults to rag.DefaultTopK if zero.
	RAGTopK int

	// History is the optional conversation store used to persist turns across
	// restarts. If nil, the session lives only in memory.
	History store.ConversationStore

	// HistoryDepth is the number of prior turns (user+assistant pairs) to
	// replay into the model context per query. Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context. Prior turns are trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int

	// SessionID keys this conversation in the history store.
	// Defaults to "default".
	SessionID string

	// Welcome is the optional assistant greeting for fresh/cleared sessions.
	Welcome string
}

// Orchestrator runs user turns against the chat model, augmenting them with
// retrieved vault context when configured. All methods are safe for
// concurrent use; turns for one session run one at a time.
type Orchestrator struct {
	model            model.ToolCallingChatModel
	retriever        rag.Retriever
	ragTopK          int
	history          store.ConversationStore
	historyDepth     int
	maxContextTokens int

	session *Session
}

// New constructs an Orchestrator and its Session from the provided Config.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat: ChatModel must not be nil")
	}

	topK := cfg.RAGTopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	return &Orchestrator{
		model:            cfg.ChatModel,
		retriever:        cfg.Retriever,
		ragTopK:          topK,
		history:          cfg.History,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
		session:          NewSession(sessionID, cfg.Welcome),
	}, nil
}

// Session returns the session owned by this orchestrator.
func (o *Orchestrator) Session() *Session {
	return o.session
}

// Resume loads recent persisted turns into the session so a restarted chat
// picks up where it left off. No-op when persistence is disabled.
func (o *Orchestrator) Resume(ctx context.Context) error {
	if o.history == nil {
		return nil
	}
	prior, err := o.history.Recent(ctx, o.session.ID(), o.historyDepth*2)
	if err != nil {
		return fmt.Errorf("chat: loading history: %w", err)
	}
	for _, m := range prior {
		msg := Message{Content: m.Content}
		switch m.Role {
		case store.RoleUser:
			msg.Role = RoleUser
		case store.RoleAssistant:
			msg.Role = RoleAssistant
			msg.Err = strings.HasPrefix(m.Content, errorIndicator)
		default:
			continue
		}
		o.session.Append(msg)
	}
	return nil
}

// Ask runs one user turn: it appends the raw question to the session,
// optionally retrieves vault context to build a transient augmented prompt,
// calls the chat model, and appends the answer (with a citation suffix when
// retrieval contributed) or an error-kind assistant message on failure.
//
// Ask never returns an error — per the session contract, failures surface as
// messages so the UI shell only ever renders the transcript.
func (o *Orchestrator) Ask(ctx context.Context, question string) Message {
	log := logging.FromContext(ctx)

	o.session.Append(Message{Role: RoleUser, Content: question})
	o.persist(ctx, store.RoleUser, question)

	prompt, sources := o.augment(ctx, question)
	messages := o.buildMessages(prompt)

	cctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	answer, err := o.model.Generate(cctx, messages)
	if err != nil {
		log.Error("chat: completion failed", slog.Any("error", err))
		return o.fail(ctx, fmt.Sprintf("%s Error communicating with the model service: %v", errorIndicator, err))
	}
	if answer == nil || answer.Content == "" {
		return o.fail(ctx, fmt.Sprintf("%s The model service returned an empty response.", errorIndicator))
	}

	content := answer.Content
	if len(sources) > 0 {
		content += "\n\n*Sources: " + strings.Join(sources, ", ") + "*"
	}

	reply := Message{Role: RoleAssistant, Content: content}
	o.session.Append(reply)
	o.persist(ctx, store.RoleAssistant, content)
	return reply
}

// Clear resets the session transcript and, when persistence is enabled,
// deletes the session's stored rows.
func (o *Orchestrator) Clear(ctx context.Context) error {
	o.session.Clear()
	if o.history != nil {
		if err := o.history.Clear(ctx, o.session.ID()); err != nil {
			return fmt.Errorf("chat: clearing history: %w", err)
		}
	}
	return nil
}

// augment retrieves vault context for the question and returns the effective
// prompt plus the contributing source names. With no retriever, or when
// retrieval fails or returns nothing, the raw question is used for this turn.
func (o *Orchestrator) augment(ctx context.Context, question string) (prompt string, sources []string) {
	if o.retriever == nil {
		return question, nil
	}

	docs, err := o.retriever.Retrieve(ctx, question, o.ragTopK)
	if err != nil {
		// Retrieval failure degrades the turn to the raw question.
		logging.FromContext(ctx).Warn("chat: retrieval failed, answering without context",
			slog.Any("error", err))
		return question, nil
	}
	if len(docs) == 0 {
		return question, nil
	}

	res := rag.Collate(docs)
	prompt = fmt.Sprintf(
		"Based on the following context, answer the user's question.\n\nContext:\n%s\n\nQuestion: %s",
		strings.Join(res.Chunks, "\n\n"), question)
	return prompt, res.Sources
}

// buildMessages assembles the model input: system prompt, prior turns trimmed
// to the token budget, and the effective prompt for the current turn. The
// session transcript already contains the current raw question, so prior
// turns exclude the final message.
func (o *Orchestrator) buildMessages(prompt string) []*schema.Message {
	transcript := o.session.Messages()
	if n := len(transcript); n > 0 {
		transcript = transcript[:n-1]
	}

	prior := make([]*schema.Message, 0, len(transcript))
	for _, m := range transcript {
		switch m.Role {
		case RoleUser:
			prior = append(prior, schema.UserMessage(m.Content))
		case RoleAssistant:
			prior = append(prior, schema.AssistantMessage(m.Content, nil))
		}
	}

	fixed := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	}
	prior = budget.TrimHistory(fixed, prior, o.maxContextTokens)

	messages := make([]*schema.Message, 0, len(prior)+2)
	messages = append(messages, fixed[0])
	messages = append(messages, prior...)
	messages = append(messages, fixed[1])
	return messages
}

// fail records an error-kind assistant message and returns it.
func (o *Orchestrator) fail(ctx context.Context, content string) Message {
	msg := Message{Role: RoleAssistant, Content: content, Err: true}
	o.session.Append(msg)
	o.persist(ctx, store.RoleAssistant, content)
	return msg
}

// persist writes one message to the history store, logging (not propagating)
// failures — durable history is best-effort.
func (o *Orchestrator) persist(ctx context.Context, role store.Role, content string) {
	if o.history == nil {
		return
	}
	if err := o.history.Append(ctx, o.session.ID(), role, content); err != nil {
		logging.FromContext(ctx).Warn("chat: failed to persist message", slog.Any("error", err))
	}
}
