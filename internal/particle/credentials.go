package particle

import (
	"context"
	"fmt"
)

// Credential format constants. The cloud API issues fixed-length identifiers;
// length is the only validation performed locally (the values are otherwise
// opaque).
const (
	// AccessTokenLength is the exact length of a cloud API access token.
	AccessTokenLength = 40

	// DeviceIDLength is the exact length of a cloud device identifier.
	DeviceIDLength = 24
)

// Credentials identifies one cloud account and device. Loaded once at
// startup and never mutated during a call; workers receive a copy.
type Credentials struct {
	AccessToken string
	DeviceID    string
}

// Configured reports whether both credential fields are present.
func (c Credentials) Configured() bool {
	return c.AccessToken != "" && c.DeviceID != ""
}

// Validate checks both fields against their exact required lengths.
//
// Returns:
//   - error: ErrInvalidCredentials (wrapped with detail) or nil
func (c Credentials) Validate() error {
	if len(c.AccessToken) != AccessTokenLength {
		return fmt.Errorf("%w: access token must be exactly %d characters (got %d)",
			ErrInvalidCredentials, AccessTokenLength, len(c.AccessToken))
	}
	if len(c.DeviceID) != DeviceIDLength {
		return fmt.Errorf("%w: device ID must be exactly %d characters (got %d)",
			ErrInvalidCredentials, DeviceIDLength, len(c.DeviceID))
	}
	return nil
}

// MaskedToken returns a redacted form of the access token for display and
// logging. Empty tokens return the empty string.
func (c Credentials) MaskedToken() string {
	const visible = 4
	if len(c.AccessToken) <= visible {
		return c.AccessToken
	}
	return c.AccessToken[:visible] + "..."
}

// CredentialStore persists one credential record per name.
//
// Implementations treat a stored record whose fields do not match the exact
// credential lengths as absent - a corrupt record must never surface as a
// usable credential.
type CredentialStore interface {
	// Load retrieves the stored credentials.
	// Returns ErrNotConfigured if no valid record exists.
	Load(ctx context.Context) (Credentials, error)

	// Save stores the credentials, replacing any existing record.
	Save(ctx context.Context, creds Credentials) error

	// Erase removes the stored record. Erasing an absent record is not an error.
	Erase(ctx context.Context) error
}
