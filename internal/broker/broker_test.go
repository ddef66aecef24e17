package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_PushPopFIFO(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	require.NoError(t, f.Push(ctx, "q", "one"))
	require.NoError(t, f.Push(ctx, "q", "two"))

	v, ok, err := f.Pop(ctx, "q", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	v, ok, err = f.Pop(ctx, "q", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", v)

	_, ok, err = f.Pop(ctx, "q", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}
