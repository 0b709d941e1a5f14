package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/model"
)

func TestMemory_AbsentKeyIsZero(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	lots, err := m.Get(ctx, "NSE:NIFTY26AUGFUT")
	require.NoError(t, err)
	assert.Equal(t, int64(0), lots)
}

func TestMemory_SetGetClearAll(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "NSE:A", 5))
	require.NoError(t, m.Set(ctx, "NSE:B", -2))

	lots, _ := m.Get(ctx, "NSE:A")
	assert.Equal(t, int64(5), lots)

	all, err := m.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"NSE:A": 5, "NSE:B": -2}, all)

	require.NoError(t, m.Clear(ctx, "NSE:A"))
	lots, _ = m.Get(ctx, "NSE:A")
	assert.Equal(t, int64(0), lots)

	require.NoError(t, m.Reset(ctx))
	all, _ = m.All(ctx)
	assert.Empty(t, all)
}

func TestMemory_SetZeroRemovesRecord(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "NSE:A", 3))
	require.NoError(t, m.Set(ctx, "NSE:A", 0))
	all, _ := m.All(ctx)
	assert.Empty(t, all)
}

func TestMemory_ClaimWindow(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.Claim(ctx, "bridge:dedup:abc", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = m.Claim(ctx, "bridge:dedup:abc", 50*time.Millisecond)
	assert.False(t, ok, "second claim inside window must fail")

	time.Sleep(60 * time.Millisecond)
	ok, _ = m.Claim(ctx, "bridge:dedup:abc", 50*time.Millisecond)
	assert.True(t, ok, "claim after window must succeed")
}

func TestKeyMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyMutex()
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("NSE:NIFTY26AUGFUT")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestKeyMutex_DifferentKeysDoNotContend(t *testing.T) {
	km := NewKeyMutex()

	unlockA := km.Lock("NSE:A")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("NSE:B")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	unlockA()
}

func TestReconcile_LiveTruthWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "NSE:X", 9))

	live := []model.NetPosition{{Key: "NSE:X", Units: -150}}
	lots, err := Reconcile(ctx, m, live, "NSE:X", 75)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), lots)

	stored, _ := m.Get(ctx, "NSE:X")
	assert.Equal(t, int64(-2), stored)
}

func TestReconcile_AbsentLivePositionMeansFlat(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "NSE:X", 4))

	lots, err := Reconcile(ctx, m, nil, "NSE:X", 75)
	require.NoError(t, err)
	assert.Equal(t, int64(0), lots)
}

func TestFloorDiv(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{150, 75, 2},
		{-150, 75, -2},
		{100, 75, 1},
		{-100, 75, -2},
		{0, 75, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, floorDiv(tc.a, tc.b), "%d/%d", tc.a, tc.b)
	}
}
