package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/tradeledger/internal/store"
)

// OpenStore opens a fresh store in a temp dir and closes it on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	return OpenStoreAt(t, filepath.Join(t.TempDir(), "test.db"))
}

// OpenStoreAt opens a store at path. Several handles on one path stand in
// for independent worker processes sharing a database.
func OpenStoreAt(t testing.TB, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open(%q) failed: %v", path, err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
