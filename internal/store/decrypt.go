package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DecryptConnectorRefreshToken decrypts a connector's refresh token
// server-side with pgp_sym_decrypt, scoped to the exact
// (token_key_id, token_version) the caller currently trusts. Returns
// pgx.ErrNoRows (wrapped) when no ACTIVE connector matches — a stale key
// binding must never silently decrypt under the wrong key. This is the
// one decrypt-capable method in the package; internal/store's boundary
// guard test asserts the host process never imports the package that
// calls it (internal/enclave/google).
func (q *Queries) DecryptConnectorRefreshToken(ctx context.Context, userID, connectorID uuid.UUID, tokenKeyID string, tokenVersion int, dataEncryptionKey string) (string, error) {
	row := q.db.QueryRow(ctx, `
		SELECT pgp_sym_decrypt(refresh_token_ciphertext, $5) AS refresh_token
		FROM connectors
		WHERE id = $1 AND user_id = $2 AND status = $6 AND token_key_id = $3 AND token_version = $4
	`, connectorID, userID, tokenKeyID, tokenVersion, dataEncryptionKey, ConnectorStatusActive)

	var token string
	if err := row.Scan(&token); err != nil {
		return "", fmt.Errorf("decrypting connector refresh token: %w", err)
	}
	return token, nil
}
