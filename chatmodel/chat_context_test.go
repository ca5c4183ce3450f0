package chatmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunContext(t *testing.T) {
	t.Parallel()
	c := NewRunContext("r1", "ollama")
	require.NotNil(t, c)
	assert.Equal(t, "r1", c.RunID())
	assert.Equal(t, "ollama", c.Provider())

	val, ok := c.GetMetadata("not-found")
	assert.Nil(t, val)
	assert.False(t, ok)
	c.SetMetadata("tools", 2)
	v, ok := c.GetMetadata("tools")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	assert.NotEmpty(t, NewRunContext("", "openai").RunID())
}

func TestContextPlumbing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Nil(t, GetRunContext(ctx))
	assert.Empty(t, GetRunID(ctx))

	ctx, rc := EnsureRunContext(ctx, "ollama")
	require.NotNil(t, rc)
	assert.Equal(t, rc, GetRunContext(ctx))
	assert.Equal(t, rc.RunID(), GetRunID(ctx))

	same, rc2 := EnsureRunContext(ctx, "openai")
	assert.Equal(t, ctx, same)
	assert.Equal(t, rc, rc2)
	assert.Equal(t, "ollama", rc2.Provider())
}

func TestNewRunID_Unique(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()
	assert.NotEqual(t, id1, id2)
}
