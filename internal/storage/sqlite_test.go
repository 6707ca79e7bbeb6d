package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "stockwatch/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "ledger.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestTransitionsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, st.RecordTransition(ctx, Transition{ProductID: "buttermilk", At: base, InStock: true, Price: "₹ 399"}))
	require.NoError(t, st.RecordTransition(ctx, Transition{ProductID: "buttermilk", At: base.Add(time.Hour), InStock: false}))
	require.NoError(t, st.RecordTransition(ctx, Transition{ProductID: "lassi", At: base, InStock: true}))

	got, err := st.RecentTransitions(ctx, "buttermilk", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first.
	assert.False(t, got[0].InStock)
	assert.True(t, got[1].InStock)
	assert.Equal(t, "₹ 399", got[1].Price)
	assert.True(t, got[1].At.Equal(base), "got %v want %v", got[1].At, base)

	limited, err := st.RecentTransitions(ctx, "buttermilk", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLastNotifiedUpsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, ok, err := st.LastNotified(ctx, "buttermilk")
	require.NoError(t, err)
	assert.False(t, ok)

	first := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, st.SetLastNotified(ctx, "buttermilk", first))

	at, ok, err := st.LastNotified(ctx, "buttermilk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(first), "got %v want %v", at, first)

	second := first.Add(6 * time.Hour)
	require.NoError(t, st.SetLastNotified(ctx, "buttermilk", second))

	at, ok, err = st.LastNotified(ctx, "buttermilk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(second))
}

func TestAppendAudit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendAudit(ctx, AuditEntry{
		At:      time.Now(),
		ActorID: 42,
		Action:  "product_add",
		Target:  "buttermilk",
		OK:      true,
	}))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{
		At:      time.Now(),
		ActorID: 999,
		Action:  "unauthorized_message",
		OK:      false,
		Error:   "not an owner",
	}))
}

func TestDisabledStoreIsNoop(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, st.RecordTransition(ctx, Transition{ProductID: "x"}))
	assert.NoError(t, st.SetLastNotified(ctx, "x", time.Now()))
	assert.NoError(t, st.AppendAudit(ctx, AuditEntry{}))

	got, err := st.RecentTransitions(ctx, "x", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, ok, err := st.LastNotified(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}
