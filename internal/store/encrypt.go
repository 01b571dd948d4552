package store

import (
	"context"
	"fmt"
)

// EncryptForStorage seals plaintext with pgp_sym_encrypt under
// dataEncryptionKey. The host process is allowed to perform this
// directly for any ciphertext column; what it is never allowed to do is
// invert a connector refresh token back to plaintext, which is why
// DecryptConnectorRefreshToken (not DecryptValue) is the one the boundary
// guard test gates.
func (q *Queries) EncryptForStorage(ctx context.Context, plaintext, dataEncryptionKey string) ([]byte, error) {
	row := q.db.QueryRow(ctx, `SELECT pgp_sym_encrypt($1, $2)`, plaintext, dataEncryptionKey)

	var ciphertext []byte
	if err := row.Scan(&ciphertext); err != nil {
		return nil, fmt.Errorf("encrypting for storage: %w", err)
	}
	return ciphertext, nil
}

// DecryptValue opens ciphertext produced by EncryptForStorage. Unlike
// DecryptConnectorRefreshToken, this is not scoped to a specific owning
// row: callers use it for host-safe ciphertext (APNs push tokens,
// automation prompts) where the worst case of decrypting the wrong row
// is an operational bug, not a trust-boundary violation. It must never
// be used for connector refresh tokens.
func (q *Queries) DecryptValue(ctx context.Context, ciphertext []byte, dataEncryptionKey string) (string, error) {
	row := q.db.QueryRow(ctx, `SELECT pgp_sym_decrypt($1, $2)`, ciphertext, dataEncryptionKey)

	var plaintext string
	if err := row.Scan(&plaintext); err != nil {
		return "", fmt.Errorf("decrypting value: %w", err)
	}
	return plaintext, nil
}
