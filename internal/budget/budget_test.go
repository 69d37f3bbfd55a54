package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := Estimate(tt.in); got != tt.want {
			t.Errorf("Estimate(%d chars) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}

func TestEstimateMessages(t *testing.T) {
	t.Parallel()

	msgs := []*schema.Message{
		schema.SystemMessage(strings.Repeat("s", 40)),
		schema.UserMessage(strings.Repeat("u", 40)),
	}
	// Each message: 4 overhead + role + 10 content.
	got := EstimateMessages(msgs)
	if got < 28 || got > 34 {
		t.Errorf("EstimateMessages = %d, expected ~30", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string modified: %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello" {
		t.Errorf("Truncate = %q, want %q", got, "hello")
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("zero limit must disable truncation, got %q", got)
	}
}

func TestTruncateToTokens(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("x", 1000)
	got := TruncateToTokens(s, 100)
	if len(got) != 400 {
		t.Errorf("TruncateToTokens kept %d chars, expected 400", len(got))
	}
}
