package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UpsertConnectorParams carries the fields written on OAuth completion.
type UpsertConnectorParams struct {
	UserID                 uuid.UUID
	Provider               string
	RefreshTokenCiphertext []byte
	TokenKeyID             string
	TokenVersion           int
	GrantedScopes          []string
}

// UpsertConnector inserts or refreshes a connector on (user_id, provider)
// conflict — the unique constraint spec.md requires.
func (q *Queries) UpsertConnector(ctx context.Context, p UpsertConnectorParams) (*Connector, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO connectors (user_id, provider, refresh_token_ciphertext, token_key_id, token_version, token_rotated_at, granted_scopes, status)
		VALUES ($1, $2, $3, $4, $5, now(), $6, $7)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			refresh_token_ciphertext = EXCLUDED.refresh_token_ciphertext,
			token_key_id = EXCLUDED.token_key_id,
			token_version = EXCLUDED.token_version,
			token_rotated_at = now(),
			granted_scopes = EXCLUDED.granted_scopes,
			status = $7,
			updated_at = now()
		RETURNING id, user_id, provider, refresh_token_ciphertext, token_key_id, token_version, token_rotated_at, granted_scopes, status, created_at, updated_at
	`, p.UserID, p.Provider, p.RefreshTokenCiphertext, p.TokenKeyID, p.TokenVersion, p.GrantedScopes, ConnectorStatusActive)

	var c Connector
	if err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.RefreshTokenCiphertext, &c.TokenKeyID, &c.TokenVersion, &c.TokenRotatedAt, &c.GrantedScopes, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upserting connector: %w", err)
	}
	return &c, nil
}

// GetActiveConnector fetches a user's active connector for a provider.
// The returned RefreshTokenCiphertext must never be decrypted by a host
// process; see boundary_test.go.
func (q *Queries) GetActiveConnector(ctx context.Context, userID uuid.UUID, provider string) (*Connector, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, provider, refresh_token_ciphertext, token_key_id, token_version, token_rotated_at, granted_scopes, status, created_at, updated_at
		FROM connectors WHERE user_id = $1 AND provider = $2 AND status = $3
	`, userID, provider, ConnectorStatusActive)

	var c Connector
	if err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.RefreshTokenCiphertext, &c.TokenKeyID, &c.TokenVersion, &c.TokenRotatedAt, &c.GrantedScopes, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("fetching active connector: %w", err)
	}
	return &c, nil
}

// AdoptConnectorKeyBinding rewrites a legacy connector row's key id and
// version to the current KMS binding policy, per the one-shot adoption
// migration spec.md §4.C describes.
func (q *Queries) AdoptConnectorKeyBinding(ctx context.Context, connectorID uuid.UUID, newKeyID string, newKeyVersion int) error {
	_, err := q.db.Exec(ctx, `
		UPDATE connectors SET token_key_id = $2, token_version = $3, updated_at = now()
		WHERE id = $1
	`, connectorID, newKeyID, newKeyVersion)
	if err != nil {
		return fmt.Errorf("adopting connector key binding: %w", err)
	}
	return nil
}

// RevokeConnector marks a connector revoked, e.g. on user action, privacy
// delete, or provider denial.
func (q *Queries) RevokeConnector(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE connectors SET status = $2, updated_at = now() WHERE id = $1
	`, id, ConnectorStatusRevoked)
	if err != nil {
		return fmt.Errorf("revoking connector: %w", err)
	}
	return nil
}

// RevokeAllConnectorsForUser revokes every connector belonging to a user.
// PurgeUserData does not call it; it deletes connector rows itself.
func (q *Queries) RevokeAllConnectorsForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE connectors SET status = $2, updated_at = now() WHERE user_id = $1
	`, userID, ConnectorStatusRevoked)
	if err != nil {
		return fmt.Errorf("revoking connectors for user: %w", err)
	}
	return nil
}
