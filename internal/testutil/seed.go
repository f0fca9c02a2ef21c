package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/graph"
)

// NewEntitlementStore creates a temp-dir SQLite entitlement store seeded
// with the given accounts.
func NewEntitlementStore(t *testing.T, accounts ...*entitlement.Account) *entitlement.SQLStore {
	t.Helper()
	store, err := entitlement.NewSQLStore(filepath.Join(t.TempDir(), "entitlement.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	for _, a := range accounts {
		require.NoError(t, store.UpsertAccount(context.Background(), a))
	}
	return store
}

// NewGraphStore creates a temp-dir SQLite canvas store seeded with one
// canvas document for the given owner.
func NewGraphStore(t *testing.T, ownerID, canvasID string, document []byte) *graph.SQLStore {
	t.Helper()
	store, err := graph.NewSQLStore(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	if canvasID != "" {
		require.NoError(t, store.Put(context.Background(), ownerID, "proj-1", canvasID, document))
	}
	return store
}
