package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UpsertDeviceParams carries the fields written on device registration.
type UpsertDeviceParams struct {
	UserID              uuid.UUID
	DeviceIdentifier    string
	APNsTokenCiphertext []byte
	Environment         ApnsEnvironment
}

// UpsertDevice inserts or updates a device on (user_id, device_identifier)
// conflict.
func (q *Queries) UpsertDevice(ctx context.Context, p UpsertDeviceParams) (*Device, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO devices (user_id, device_identifier, apns_token_ciphertext, environment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, device_identifier) DO UPDATE SET
			apns_token_ciphertext = EXCLUDED.apns_token_ciphertext,
			environment = EXCLUDED.environment,
			updated_at = now()
		RETURNING id, user_id, device_identifier, apns_token_ciphertext, environment, created_at, updated_at
	`, p.UserID, p.DeviceIdentifier, p.APNsTokenCiphertext, p.Environment)

	var d Device
	if err := row.Scan(&d.ID, &d.UserID, &d.DeviceIdentifier, &d.APNsTokenCiphertext, &d.Environment, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upserting device: %w", err)
	}
	return &d, nil
}

// ListDevicesForUser returns every device registered to a user.
func (q *Queries) ListDevicesForUser(ctx context.Context, userID uuid.UUID) ([]Device, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, device_identifier, apns_token_ciphertext, environment, created_at, updated_at
		FROM devices WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing devices for user: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.DeviceIdentifier, &d.APNsTokenCiphertext, &d.Environment, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes a device registration, e.g. on unregister or
// privacy delete.
func (q *Queries) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return nil
}
