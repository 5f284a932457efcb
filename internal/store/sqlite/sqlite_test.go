package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sonicspectrum/msghub/internal/store"
	"github.com/sonicspectrum/msghub/internal/store/storetest"
)

func newMemoryStore(t *testing.T) store.Store {
	t.Helper()

	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return st
}

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, newMemoryStore)
}

func TestNew_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msghub.db")

	first, err := New(path)
	require.NoError(t, err)
	storetest.SeedUsers(t, first, "u1")
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()

	exists, err := second.UserExists(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, exists, "data should survive reopening")
}

func TestSaveMessage_RejectsUnknownUsers(t *testing.T) {
	st := newMemoryStore(t)
	defer st.Close()
	storetest.SeedUsers(t, st, "u1")

	err := st.SaveMessage(context.Background(), storetest.NewMessage("u1", "ghost", "hi", time.Now()))
	require.Error(t, err, "foreign key should reject unknown receiver")
}

func TestNewWithSetup_PropagatesSetupError(t *testing.T) {
	_, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(`CREATE TABLE broken (`)
		return err
	})
	require.Error(t, err)
}
