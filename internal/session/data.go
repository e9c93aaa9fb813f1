package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// Type is the lifecycle state carried in a session's data blob.
type Type string

const (
	// TypeUser is a fully authenticated session.
	TypeUser Type = "user"
	// TypeCheckTwoStep is an intermediate state after a first factor but
	// before the required second factor has been verified.
	TypeCheckTwoStep Type = "checkTwoStep"
	// TypePasswordBasedUpdatePassword restricts the session to the
	// update-password endpoint after a forced password rotation window.
	TypePasswordBasedUpdatePassword Type = "passwordBasedUpdatePassword"
)

// LoginType records which authentication provider produced the session.
type LoginType string

const (
	LoginTypePasswordBased  LoginType = "passwordBased"
	LoginTypeAnonymousBased LoginType = "anonymousBased"
	LoginTypeDigidBased     LoginType = "digidBased"
	LoginTypeKeycloakBased  LoginType = "keycloakBased"
	// LoginTypeManagement marks a transient elevated-session user created
	// by the self-provisioning magic-link flow (spec §4.8).
	LoginTypeManagement LoginType = "management"
)

// TwoStepType names the pending second factor for a checkTwoStep session.
type TwoStepType string

const (
	TwoStepTypePasswordBasedOtp TwoStepType = "passwordBasedOtp"
	TwoStepTypeTotp             TwoStepType = "totp"
)

// Data is the opaque blob every Session row carries (spec §3). It is
// caller-owned: the Session Store treats it as bytes and only recomputes
// the checksum; every field here is interpreted by the layers above
// (authentication providers, User Directory, impersonation).
type Data struct {
	UserID             uuid.UUID   `json:"userId"`
	LoginType          LoginType   `json:"loginType,omitempty"`
	Type               Type        `json:"type"`
	TwoStepType        TwoStepType `json:"twoStepType,omitempty"`
	ImpersonatorUserID *uuid.UUID  `json:"impersonatorUserId,omitempty"`
}

// Marshal serializes Data to the bytes stored in Session.Data.
func (d Data) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalData parses a stored session data blob.
func UnmarshalData(raw []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, err
	}
	return d, nil
}

// Checksum computes the content hash used to detect tampering or stale
// writes against a session's data blob (spec §4.3). It is keyed with the
// signing key (not a bare hash) so a write straight to storage, bypassing
// this package, cannot forge a matching checksum.
func Checksum(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyChecksum reports whether sum matches the checksum of data under key,
// in constant time.
func VerifyChecksum(key, data []byte, sum string) bool {
	expected := Checksum(key, data)
	return hmac.Equal([]byte(expected), []byte(sum))
}
