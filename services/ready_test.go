package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateOpensOnce(t *testing.T) {
	g := NewGate()
	assert.False(t, g.Ready())

	g.Open(nil)
	g.Open(ErrNotReady) // later opens are ignored

	assert.True(t, g.Ready())
	assert.NoError(t, g.Wait(context.Background()))
}

func TestGateWaitHonorsContext(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateOpenWithError(t *testing.T) {
	g := NewGate()
	g.Open(ErrNotReady)

	err := g.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}
