package particle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultCredentialRecord is the record name used for the bridge's single
// cloud account.
const DefaultCredentialRecord = "particle"

// SQLiteCredentialStore persists credentials in the cloud_credentials table.
//
// Thread Safety: safe for concurrent use; the underlying *sql.DB serialises
// access.
type SQLiteCredentialStore struct {
	db     *sql.DB
	record string
}

// NewSQLiteCredentialStore creates a store bound to one record name.
// An empty record name selects DefaultCredentialRecord.
func NewSQLiteCredentialStore(db *sql.DB, record string) *SQLiteCredentialStore {
	if record == "" {
		record = DefaultCredentialRecord
	}
	return &SQLiteCredentialStore{db: db, record: record}
}

// Load retrieves the stored credentials.
//
// A missing row and a row with wrong-length fields are both reported as
// ErrNotConfigured: a record that doesn't match the fixed credential format
// is unreadable, and the caller should prompt for fresh credentials.
func (s *SQLiteCredentialStore) Load(ctx context.Context) (Credentials, error) {
	var creds Credentials
	err := s.db.QueryRowContext(ctx,
		"SELECT access_token, device_id FROM cloud_credentials WHERE record = ?",
		s.record,
	).Scan(&creds.AccessToken, &creds.DeviceID)

	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrNotConfigured
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("loading credentials: %w", err)
	}

	if creds.Validate() != nil {
		return Credentials{}, fmt.Errorf("%w: stored record unreadable", ErrNotConfigured)
	}

	return creds, nil
}

// Save stores the credentials, replacing any existing record.
// Credentials are validated before writing; malformed values are rejected.
func (s *SQLiteCredentialStore) Save(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cloud_credentials (record, access_token, device_id, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(record) DO UPDATE SET
			access_token = excluded.access_token,
			device_id = excluded.device_id,
			updated_at = CURRENT_TIMESTAMP`,
		s.record, creds.AccessToken, creds.DeviceID,
	)
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// Erase removes the stored record. Erasing an absent record is not an error.
func (s *SQLiteCredentialStore) Erase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM cloud_credentials WHERE record = ?", s.record,
	); err != nil {
		return fmt.Errorf("erasing credentials: %w", err)
	}
	return nil
}
