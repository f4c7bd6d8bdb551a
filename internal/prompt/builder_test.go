package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/foreman/internal/types"
)

// wordCount stands in for a tokenizer.
func wordCount(s string) int { return len(strings.Fields(s)) }

func session(msgs ...types.Message) *types.Session {
	return &types.Session{ID: "P-1", Project: "P", Title: "login", Messages: msgs}
}

func msg(role, content string) types.Message {
	return types.Message{Role: role, Content: content}
}

func TestBuildIncludesPresetAndTranscript(t *testing.T) {
	b := NewWithCounter(wordCount, 1000)
	b.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	p, err := b.Build(Input{
		Session:    session(msg("user", "fix the login form"), msg("assistant", "done")),
		Repository: "/src/p",
		Preset:     "Always run the tests.",
	})
	require.NoError(t, err)

	assert.Contains(t, p.System, "session P-1 of project P")
	assert.Contains(t, p.System, `("login")`)
	assert.Contains(t, p.System, "/src/p")
	assert.Contains(t, p.System, "2026-01-02T03:04:05Z")

	assert.True(t, strings.HasPrefix(p.Text, "Always run the tests."))
	assert.Less(t, strings.Index(p.Text, "fix the login form"), strings.Index(p.Text, "## assistant"))
	assert.Zero(t, p.Dropped)
}

func TestBuildTrimsOldestFirst(t *testing.T) {
	b := NewWithCounter(wordCount, 12)
	p, err := b.Build(Input{Session: session(
		msg("user", "one two three four five"),
		msg("assistant", "six seven eight"),
		msg("user", "nine ten"),
	)})
	require.NoError(t, err)

	assert.Equal(t, 1, p.Dropped)
	assert.NotContains(t, p.Text, "one two")
	assert.Contains(t, p.Text, "six seven eight")
	assert.Contains(t, p.Text, "[1 earlier messages omitted]")
}

func TestBuildKeepsNewestOverBudget(t *testing.T) {
	b := NewWithCounter(wordCount, 1)
	p, err := b.Build(Input{Session: session(msg("user", "a very long request indeed"))})
	require.NoError(t, err)
	assert.Contains(t, p.Text, "a very long request indeed")
	assert.Zero(t, p.Dropped)
}

func TestBuildResumingSendsOnlyNewMessages(t *testing.T) {
	b := NewWithCounter(wordCount, 1000)
	p, err := b.Build(Input{
		Resuming: true,
		Session: session(
			msg("user", "first request"),
			msg("assistant", "first answer"),
			msg("user", "follow up"),
		),
	})
	require.NoError(t, err)
	assert.NotContains(t, p.Text, "first request")
	assert.Contains(t, p.Text, "follow up")
}
