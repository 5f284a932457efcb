package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/sonicspectrum/msghub/internal/store"
	"github.com/sonicspectrum/msghub/internal/store/storetest"
)

// Runs against a real server: MSGHUB_TEST_POSTGRES_DSN=postgres://localhost/msghub_test?sslmode=disable
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	dsn := os.Getenv("MSGHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MSGHUB_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	st, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if _, err := st.db.ExecContext(ctx, `TRUNCATE messages, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return st
}

func TestPostgresStoreConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}
