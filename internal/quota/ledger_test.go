package quota

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestPeriodStart(t *testing.T) {
	assert.Equal(t, "2026-03-01", PeriodStart(time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-01", PeriodStart(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	// local time just before midnight on the 1st is still the prior UTC month
	loc := time.FixedZone("UTC+5", 5*60*60)
	assert.Equal(t, "2026-02-01", PeriodStart(time.Date(2026, 3, 1, 3, 0, 0, 0, loc)))
}

func TestCheckAndReserveBoundary(t *testing.T) {
	ledger := newLedger(t)
	ctx := context.Background()
	period := PeriodStart(time.Now())

	// missing record counts as zero
	current, err := ledger.CheckAndReserve(ctx, "u1", period, 1000)
	require.NoError(t, err)
	assert.Zero(t, current)

	require.NoError(t, ledger.Commit(ctx, "u1", period, 700, 299))

	// limit-1 passes
	current, err = ledger.CheckAndReserve(ctx, "u1", period, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(999), current)

	require.NoError(t, ledger.Commit(ctx, "u1", period, 1, 0))

	// exactly at limit fails
	current, err = ledger.CheckAndReserve(ctx, "u1", period, 1000)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(1000), current)
}

func TestCommitAccumulates(t *testing.T) {
	ledger := newLedger(t)
	ctx := context.Background()
	period := PeriodStart(time.Now())

	require.NoError(t, ledger.Commit(ctx, "u1", period, 100, 20))
	require.NoError(t, ledger.Commit(ctx, "u1", period, 50, 10))

	rec, err := ledger.Get(ctx, "u1", period)
	require.NoError(t, err)
	assert.Equal(t, int64(150), rec.TokensIn)
	assert.Equal(t, int64(30), rec.TokensOut)
	assert.Equal(t, int64(2), rec.RequestCount)
	assert.False(t, rec.LastRequestAt.IsZero())
}

func TestPeriodsAreIndependent(t *testing.T) {
	ledger := newLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Commit(ctx, "u1", "2026-02-01", 999, 1))

	// new period starts from zero even though the old record remains
	current, err := ledger.CheckAndReserve(ctx, "u1", "2026-03-01", 1000)
	require.NoError(t, err)
	assert.Zero(t, current)

	old, err := ledger.Get(ctx, "u1", "2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, int64(999), old.TokensIn)
}

func TestOwnersAreIndependent(t *testing.T) {
	ledger := newLedger(t)
	ctx := context.Background()
	period := PeriodStart(time.Now())

	require.NoError(t, ledger.Commit(ctx, "u1", period, 500, 500))

	current, err := ledger.CheckAndReserve(ctx, "u2", period, 1000)
	require.NoError(t, err)
	assert.Zero(t, current)
}

func TestGetMissingRecordIsZero(t *testing.T) {
	ledger := newLedger(t)

	rec, err := ledger.Get(context.Background(), "ghost", "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, "ghost", rec.OwnerID)
	assert.Zero(t, rec.TokensIn)
	assert.Zero(t, rec.RequestCount)
	assert.True(t, rec.LastRequestAt.IsZero())
}
