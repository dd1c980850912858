// Package tui implements the interactive chat interface using Bubble Tea.
// The model renders the session transcript in a viewport, accepts questions
// through a text input, and shows model, retrieval, and connectivity state
// in a status line.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/54b3r/vaultchat-go/internal/chat"
	"github.com/54b3r/vaultchat-go/internal/health"
)

// Conversation is the TUI-facing subset of the chat orchestrator.
type Conversation interface {
	// Ask runs one turn. Failures come back as error-kind messages.
	Ask(ctx context.Context, question string) chat.Message
	// Clear resets the session to its initial state.
	Clear(ctx context.Context) error
	// Session exposes the transcript for rendering.
	Session() *chat.Session
}

// State is what the chat loop is currently doing, shown in the status line.
type State string

const (
	// StateIdle means the input is focused and a question can be typed.
	StateIdle State = "idle"
	// StateAwaiting means a turn is in flight and input is ignored.
	StateAwaiting State = "awaiting"
)

// Status carries the environment facts rendered in the status line.
type Status struct {
	// Model is the chat model name (e.g. "llama3").
	Model string
	// RAGEnabled reports whether vault retrieval is wired in.
	RAGEnabled bool
	// Services holds the connectivity check results gathered at startup.
	Services []health.Status
}

// answerMsg delivers a completed turn back into the update loop.
type answerMsg struct {
	// message is the assistant message produced by the turn.
	message chat.Message
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	conv     Conversation
	status   Status
	input    textinput.Model
	viewport viewport.Model
	state    State
	ready    bool
	width    int
}

// New creates the chat TUI model around an existing conversation.
func New(conv Conversation, status Status) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your vault and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		conv:     conv,
		status:   status,
		input:    ti,
		viewport: viewport.New(0, 0),
		state:    StateIdle,
		width:    80,
	}
}

// Init starts the text input cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window, and turn-completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, frameH := transcriptStyle.GetFrameSize()
		// header + input + status plus a spacer each side of the transcript.
		reserved := 5 + frameH
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = maxInt(3, msg.Height-reserved)
		m.refreshTranscript()
		return m, nil

	case answerMsg:
		m.state = StateIdle
		m.input.Focus()
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyCtrlL {
			if err := m.conv.Clear(context.Background()); err == nil {
				m.refreshTranscript()
			}
			return m, nil
		}
		if m.state == StateAwaiting {
			// A turn is in flight; swallow input until it completes.
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.input.Blur()
			m.state = StateAwaiting
			return m, m.askCmd(question)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// askCmd runs one conversation turn off the update loop. The orchestrator
// owns timeouts and error conversion, so the command never fails.
func (m Model) askCmd(question string) tea.Cmd {
	conv := m.conv
	return func() tea.Msg {
		return answerMsg{message: conv.Ask(context.Background(), question)}
	}
}

// View renders the full chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("vaultchat")
	transcript := transcriptStyle.Render(m.viewport.View())
	input := m.input.View()
	if m.state == StateAwaiting {
		input = thinkingStyle.Render("thinking...")
	}
	return header + "\n" + transcript + "\n" + input + "\n" + m.statusLine()
}

// refreshTranscript re-renders the session transcript into the viewport.
func (m *Model) refreshTranscript() {
	m.viewport.SetContent(renderTranscript(m.conv.Session().Messages()))
}

// statusLine renders the model name, retrieval state, and service
// connectivity gathered at startup.
func (m Model) statusLine() string {
	parts := []string{"model: " + m.status.Model}

	if m.status.RAGEnabled {
		parts = append(parts, "rag: on")
	} else {
		parts = append(parts, "rag: off")
	}

	for _, svc := range m.status.Services {
		switch svc.State {
		case health.StateOK:
			parts = append(parts, svc.Service+": "+okStyle.Render("connected"))
		case health.StateDisconnected:
			parts = append(parts, svc.Service+": "+errStyle.Render("disconnected"))
		case health.StateNotApplicable:
			parts = append(parts, svc.Service+": n/a")
		}
	}

	return statusStyle.Render(strings.Join(parts, "  |  "))
}

// renderTranscript formats the session messages for the viewport.
func renderTranscript(messages []chat.Message) string {
	if len(messages) == 0 {
		return "No messages yet. Ask something about your vault."
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case msg.Role == chat.RoleUser:
			b.WriteString(userStyle.Render("you") + "  " + msg.Content)
		case msg.Err:
			b.WriteString(errStyle.Render(msg.Content))
		default:
			b.WriteString(assistantStyle.Render("vaultchat") + "  " + msg.Content)
		}
	}
	return b.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	thinkingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	okStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run starts the Bubble Tea program and blocks until the user quits.
func Run(conv Conversation, status Status) error {
	p := tea.NewProgram(New(conv, status), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
