package models

import "time"

// Operation identifies which client-initiated operation an idempotency key
// was used for. Keys are scoped per operation, so the same key may be used
// once for create and once for confirm.
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationConfirm Operation = "confirm"
)

// IdempotencyRecord binds a caller-supplied key to the fingerprint of the
// request first seen under it and to the intent that request produced.
//
// (MerchantID, Key, Operation, TargetIntentID) is unique. Records are never
// updated or deleted.
type IdempotencyRecord struct {
	MerchantID string    `json:"merchantId"`
	Key        string    `json:"key"`
	Operation  Operation `json:"operation"`

	// TargetIntentID is the intent a confirm was aimed at. Empty for create.
	TargetIntentID string `json:"targetIntentId,omitempty"`

	// Fingerprint is the hex SHA-256 of the canonical request payload.
	Fingerprint string `json:"fingerprint"`

	// ResultIntentID is the intent the original request produced.
	ResultIntentID string `json:"resultIntentId"`

	CreatedAt time.Time `json:"createdAt"`
}
