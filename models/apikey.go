package models

import "time"

type APIKeyStatus string

const (
	APIKeyActive  APIKeyStatus = "ACTIVE"
	APIKeyRevoked APIKeyStatus = "REVOKED"
)

// APIKey lets a merchant's servers authenticate without a bearer token. Only
// a bcrypt hash of the secret is kept; Prefix is the leading part of the
// secret and identifies the key on lookup.
type APIKey struct {
	ID         string       `json:"id"`
	MerchantID string       `json:"merchantId"`
	Prefix     string       `json:"keyPrefix"`
	Hash       string       `json:"keyHash"`
	Status     APIKeyStatus `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
	RevokedAt  *time.Time   `json:"revokedAt,omitempty"`
}
