package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanPool_BlocksAtCapacityUntilRelease(t *testing.T) {
	p := NewChanPool(2)
	ctx := context.Background()

	r1, ok := p.Acquire(ctx)
	require.True(t, ok)
	_, ok = p.Acquire(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, p.InUse())

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, ok = p.Acquire(short)
	assert.False(t, ok, "third caller must wait out its deadline")

	r1()
	r1()
	assert.Equal(t, 1, p.InUse(), "double release frees one slot only")

	_, ok = p.Acquire(ctx)
	assert.True(t, ok)
}

func TestChanPool_CancelledContextNeverAcquires(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := p.Acquire(ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, p.InUse())
}

func TestChanPool_MinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, NewChanPool(0).Cap())
}
