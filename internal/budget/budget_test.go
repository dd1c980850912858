package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"ok", 1}, // short strings round up to 1
		{"pods", 1},
		{"pod restarted", 3},
		{strings.Repeat("v", 4000), 1000},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	// Per message: 4 overhead + Estimate("user")=1 + Estimate("check the logs")=3 = 8.
	msgs := []*schema.Message{
		schema.UserMessage("check the logs"),
		schema.UserMessage("check the logs"),
	}
	if got := EstimateMessages(msgs); got != 16 {
		t.Errorf("EstimateMessages = %d, want 16", got)
	}
}

func Test_TrimHistory_EverythingFits(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("you answer vault questions")}
	history := []*schema.Message{
		schema.UserMessage("what broke?"),
		schema.AssistantMessage("the ingress controller", nil),
	}
	got := TrimHistory(fixed, history, DefaultMaxContextTokens)
	if len(got) != len(history) {
		t.Errorf("want all %d history messages kept, got %d", len(history), len(got))
	}
}

func Test_TrimHistory_DropsOldestFirst(t *testing.T) {
	t.Parallel()
	history := []*schema.Message{
		schema.UserMessage("first"),
		schema.UserMessage("second"),
		schema.UserMessage("third"),
	}
	// Each history message costs 4 overhead + 1 (role) + 1 (content) = 6
	// tokens. A budget of 13 fits two messages (12) but not three (18), so
	// only the oldest goes.
	got := TrimHistory(nil, history, 13)
	if len(got) != 2 {
		t.Fatalf("want 2 history messages after trim, got %d", len(got))
	}
	if got[0].Content != "second" || got[1].Content != "third" {
		t.Errorf("want newest two in order, got [%q, %q]", got[0].Content, got[1].Content)
	}
}

func Test_TrimHistory_EmptyHistory(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	if got := TrimHistory(fixed, nil, DefaultMaxContextTokens); len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}

func Test_TrimHistory_FixedAloneBlowsBudget(t *testing.T) {
	t.Parallel()
	// When the system prompt plus augmented question already exceed the
	// budget, no prior turn is replayed at all.
	fixed := []*schema.Message{
		schema.SystemMessage(strings.Repeat("v", 4*7000)), // ~7000 tokens
	}
	history := []*schema.Message{
		schema.UserMessage("old question"),
		schema.AssistantMessage("old answer", nil),
	}
	if got := TrimHistory(fixed, history, 6000); len(got) != 0 {
		t.Errorf("want 0 history messages, got %d", len(got))
	}
}
