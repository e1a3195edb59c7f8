package particle

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func openTestStore(t *testing.T) *SQLiteCredentialStore {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	_, err = db.Exec(`
		CREATE TABLE cloud_credentials (
			record TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			device_id TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		t.Fatalf("creating credentials table: %v", err)
	}

	return NewSQLiteCredentialStore(db, "")
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestCredentialStoreSaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testCreds); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != testCreds {
		t.Errorf("loaded = %+v, want %+v", loaded, testCreds)
	}
}

func TestCredentialStoreLoadEmpty(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestCredentialStoreSaveReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := testCreds
	second := Credentials{
		AccessToken: strings.Repeat("b", AccessTokenLength),
		DeviceID:    strings.Repeat("e", DeviceIDLength),
	}

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != second {
		t.Errorf("loaded = %+v, want replacement %+v", loaded, second)
	}
}

func TestCredentialStoreSaveRejectsInvalid(t *testing.T) {
	store := openTestStore(t)

	err := store.Save(context.Background(), Credentials{AccessToken: "short", DeviceID: "short"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestCredentialStoreCorruptRecordTreatedAsAbsent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Bypass Save's validation to plant a wrong-length record.
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO cloud_credentials (record, access_token, device_id) VALUES (?, ?, ?)",
		DefaultCredentialRecord, "truncated-token", "truncated-id",
	)
	if err != nil {
		t.Fatalf("planting corrupt record: %v", err)
	}

	_, err = store.Load(ctx)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured for corrupt record", err)
	}
}

func TestCredentialStoreErase(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testCreds); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Erase(ctx); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error after erase = %v, want ErrNotConfigured", err)
	}

	// Erasing again is still fine.
	if err := store.Erase(ctx); err != nil {
		t.Errorf("second Erase failed: %v", err)
	}
}

func TestCredentialsMaskedToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"full length", strings.Repeat("a", AccessTokenLength), "aaaa..."},
		{"empty", "", ""},
		{"shorter than mask", "ab", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Credentials{AccessToken: tt.token}
			if got := c.MaskedToken(); got != tt.want {
				t.Errorf("MaskedToken = %q, want %q", got, tt.want)
			}
		})
	}
}
