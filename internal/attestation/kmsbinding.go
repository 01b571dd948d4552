package attestation

import "errors"

// LegacyConnectorKeyID is the sentinel key id stamped on connector rows
// created before KMS key versioning existed. A decrypt request against a
// legacy row triggers a one-shot adoption rewrite instead of a hard
// failure.
const LegacyConnectorKeyID = "legacy"

// ErrConnectorTokenUnavailable names the failure for a connector whose
// bound key id/version does not match the current KMS policy and is not
// the legacy sentinel. CheckBinding reports that case as (false, false)
// and does not return this error; no code in this package returns it.
var ErrConnectorTokenUnavailable = errors.New("attestation: connector_token_unavailable")

// KMSBindingPolicy is the current key id/version every decrypt-capable
// connector row must match.
type KMSBindingPolicy struct {
	KeyID      string
	KeyVersion int
}

// ConnectorKeyBinding describes the key a connector row is currently
// encrypted under.
type ConnectorKeyBinding struct {
	KeyID      string
	KeyVersion int
}

// CheckBinding reports whether binding matches policy exactly, whether it
// is eligible for one-shot legacy adoption, or neither (in which case the
// caller must return connector_token_unavailable and trigger metadata
// reconciliation before retrying).
func (p KMSBindingPolicy) CheckBinding(binding ConnectorKeyBinding) (matches, needsAdoption bool) {
	if binding.KeyID == p.KeyID && binding.KeyVersion == p.KeyVersion {
		return true, false
	}
	if binding.KeyID == LegacyConnectorKeyID {
		return false, true
	}
	return false, false
}

// Adopt returns the binding a legacy connector row should be rewritten to
// before decrypt proceeds.
func (p KMSBindingPolicy) Adopt() ConnectorKeyBinding {
	return ConnectorKeyBinding{KeyID: p.KeyID, KeyVersion: p.KeyVersion}
}
