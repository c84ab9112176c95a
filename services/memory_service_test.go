package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMemory(t *testing.T, chat ChatModel, budget, keepRecent int) *MemoryService {
	t.Helper()
	m, err := NewMemoryService(filepath.Join(t.TempDir(), "mem.db"), chat, budget, keepRecent, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	// Deterministic counting keeps the compaction tests independent of
	// the tokenizer.
	m.countTokens = func(text string) int { return len(strings.Fields(text)) }
	return m
}

func TestSaveAndLoadTurns(t *testing.T) {
	m := newTestMemory(t, &scriptedChat{}, 1000, 4)
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "s1", "what is a goroutine?", "a lightweight thread"))
	require.NoError(t, m.SaveTurn(ctx, "s1", "and a channel?", "a typed conduit"))

	history, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t,
		"User: what is a goroutine?\n"+
			"Assistant: a lightweight thread\n"+
			"User: and a channel?\n"+
			"Assistant: a typed conduit\n",
		history)
}

func TestSessionsAreIsolated(t *testing.T) {
	m := newTestMemory(t, &scriptedChat{}, 1000, 4)
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "a", "qa", "aa"))
	require.NoError(t, m.SaveTurn(ctx, "b", "qb", "ab"))

	msgs, err := m.HistoryMessages(ctx, "a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "qa", msgs[0].Content)
}

func TestClearRemovesHistoryAndSummary(t *testing.T) {
	m := newTestMemory(t, &scriptedChat{}, 1000, 4)
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "s1", "q", "a"))
	require.NoError(t, m.Clear(ctx, "s1"))

	history, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCompactionFoldsOldTurnsIntoSummary(t *testing.T) {
	chat := &scriptedChat{replies: []string{"they discussed goroutines"}}
	// Budget of 2 tokens with two retained turns forces compaction on
	// the third save.
	m := newTestMemory(t, chat, 2, 2)
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "s1", "first question here", "first answer here"))
	require.NoError(t, m.SaveTurn(ctx, "s1", "second question", "second answer"))
	require.NoError(t, m.SaveTurn(ctx, "s1", "third question", "third answer"))

	msgs, err := m.HistoryMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 4, "only the recent turns stay verbatim")
	assert.Equal(t, "second question", msgs[0].Content)

	history, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, history, "they discussed goroutines")
	assert.Contains(t, history, "third answer")
	assert.NotContains(t, history, "first question here")
}

func TestCompactionFailureKeepsTranscript(t *testing.T) {
	// No scripted replies, so the summarize call fails.
	m := newTestMemory(t, &scriptedChat{}, 2, 1)
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "s1", "one question", "one answer"))
	require.NoError(t, m.SaveTurn(ctx, "s1", "two question", "two answer"))

	msgs, err := m.HistoryMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 4, "a failed summarization must not lose messages")
}

func TestConcurrentSavesDifferentSessions(t *testing.T) {
	m := newTestMemory(t, &scriptedChat{}, 1000, 4)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			session := fmt.Sprintf("s%d", i%4)
			done <- m.SaveTurn(ctx, session, "q", "a")
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	for i := 0; i < 4; i++ {
		msgs, err := m.HistoryMessages(ctx, fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		assert.Len(t, msgs, 4)
	}
}
