package ratelimitsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/testutil"
)

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = time.Now })

	ctx := context.Background()
	l := NewMemoryLimiter(2, time.Minute)

	for i, want := range []bool{true, true, false, false} {
		ok, err := l.Allow(ctx, "login:1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "attempt %d", i+1)
	}

	ok, err := l.Allow(ctx, "login:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok, "keys are counted apart")

	now = now.Add(time.Minute)
	ok, err = l.Allow(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts")
	assert.Len(t, l.windows, 1, "expired windows are swept")
}

func TestNew(t *testing.T) {
	conf := testutil.Config()
	conf.Redis.Addr = ""

	conf.RateLimit.Requests = 0
	l, err := New(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, noLimit{}, l)

	conf.RateLimit.Requests, conf.RateLimit.Window = 5, time.Second
	l, err = New(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, &memoryLimiter{}, l)
}
