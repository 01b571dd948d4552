package hostapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/audit"
	"github.com/alfredhq/backend/internal/store"
)

// DeviceDeps are the dependencies RegisterDevice/RevokeDevice close over.
type DeviceDeps struct {
	Store             *store.Queries
	Audit             *audit.Writer
	DataEncryptionKey string
}

type registerDeviceRequest struct {
	DeviceIdentifier string `json:"device_identifier" validate:"required"`
	APNsToken        string `json:"apns_token" validate:"required"`
	Environment      string `json:"environment" validate:"required,oneof=sandbox production"`
}

type deviceResponse struct {
	ID               uuid.UUID `json:"id"`
	DeviceIdentifier string    `json:"device_identifier"`
	Environment      string    `json:"environment"`
}

// RegisterDevice upserts a device's APNs push token. The token is
// encrypted host-side with EncryptForStorage before it is ever written;
// decrypting it back out is the job engine's responsibility at send
// time, not this handler's.
func (d DeviceDeps) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req registerDeviceRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	ciphertext, err := d.Store.EncryptForStorage(r.Context(), req.APNsToken, d.DataEncryptionKey)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "device_encrypt_failed", err))
		return
	}

	device, err := d.Store.UpsertDevice(r.Context(), store.UpsertDeviceParams{
		UserID:              userID,
		DeviceIdentifier:    req.DeviceIdentifier,
		APNsTokenCiphertext: ciphertext,
		Environment:         store.ApnsEnvironment(req.Environment),
	})
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "device_upsert_failed", err))
		return
	}

	d.Audit.LogFromRequest(r, userID, "device_registered", nil, store.AuditResultSuccess, map[string]any{
		"device_id":   device.ID.String(),
		"environment": string(device.Environment),
	})

	Respond(w, http.StatusOK, deviceResponse{
		ID:               device.ID,
		DeviceIdentifier: device.DeviceIdentifier,
		Environment:      string(device.Environment),
	})
}

// RevokeDevice deletes a device, scoped to the authenticated user by
// checking ownership first since store.DeleteDevice has no built-in
// ownership check.
func (d DeviceDeps) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_device_id", "deviceID must be a UUID")
		return
	}

	devices, err := d.Store.ListDevicesForUser(r.Context(), userID)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "device_list_failed", err))
		return
	}
	owned := false
	for _, dev := range devices {
		if dev.ID == deviceID {
			owned = true
			break
		}
	}
	if !owned {
		writeError(w, http.StatusNotFound, "device_not_found", "no such device for this user")
		return
	}

	if err := d.Store.DeleteDevice(r.Context(), deviceID); err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "device_delete_failed", err))
		return
	}

	d.Audit.LogFromRequest(r, userID, "device_revoked", nil, store.AuditResultSuccess, map[string]any{
		"device_id": deviceID.String(),
	})

	Respond(w, http.StatusNoContent, nil)
}
