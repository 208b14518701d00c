// Package handlers provides the HTTP surface of the payment intent API.
//
// Retrying any endpoint is safe:
//
//   - POST /api/payment_intents with an Idempotency-Key returns the original
//     intent on retry: 201 Created the first time, 200 OK afterwards.
//   - POST /api/payment_intents/{id}/confirm requires an Idempotency-Key. A
//     retry returns the recorded outcome and never charges twice.
//   - POST /api/payment_intents/{id}/cancel on a canceled intent returns it
//     unchanged.
//   - POST /api/webhooks/provider may be delivered any number of times; only
//     the first delivery that can move the intent has an effect.
//
// Callers authenticate with a bearer token or, for server-to-server calls,
// an API key in X-API-KEY.
//
// Idempotent-Replayed tells the caller whether a keyed request was executed
// (false) or answered from a previous execution (true).
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/arkantrust/payment-intents/apikeys"
	"github.com/arkantrust/payment-intents/audit"
	"github.com/arkantrust/payment-intents/auth"
	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/payments"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

// Handler holds the dependencies of every API handler.
type Handler struct {
	orch   *payments.Orchestrator
	keys   *apikeys.Service
	audit  *audit.Sink
	logger *slog.Logger
}

// New creates a Handler.
func New(orch *payments.Orchestrator, keys *apikeys.Service, sink *audit.Sink, logger *slog.Logger) *Handler {
	return &Handler{orch: orch, keys: keys, audit: sink, logger: logger}
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func setReplayed(w http.ResponseWriter, replayed bool) {
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	} else {
		w.Header().Set(ReplayedHeader, "false")
	}
}

// merchant returns the authenticated merchant, answering 401 itself when
// there is none.
func (h *Handler) merchant(w http.ResponseWriter, r *http.Request) (string, bool) {
	m, ok := auth.Merchant(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, "Authentication required", nil)
	}
	return m, ok
}

type intentResponse struct {
	ID                string        `json:"id"`
	MerchantID        string        `json:"merchantId"`
	Amount            json.Number   `json:"amount"`
	Currency          string        `json:"currency"`
	Status            models.Status `json:"status"`
	Description       string        `json:"description,omitempty"`
	CustomerReference string        `json:"customerReference,omitempty"`
	ProviderPaymentID string        `json:"providerPaymentId,omitempty"`
	FailureCode       string        `json:"failureCode,omitempty"`
	FailureMessage    string        `json:"failureMessage,omitempty"`
	Version           int64         `json:"version"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

func newIntentResponse(p *models.PaymentIntent) intentResponse {
	return intentResponse{
		ID:                p.ID,
		MerchantID:        p.MerchantID,
		Amount:            json.Number(p.Amount.StringFixed(2)),
		Currency:          p.Currency,
		Status:            p.Status,
		Description:       p.Description,
		CustomerReference: p.CustomerReference,
		ProviderPaymentID: p.ProviderReference,
		FailureCode:       p.FailureCode,
		FailureMessage:    p.FailureMessage,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

type eventResponse struct {
	ID        uint64           `json:"id"`
	Type      models.EventType `json:"type"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

type pageResponse[T any] struct {
	Content       []T `json:"content"`
	TotalElements int `json:"totalElements"`
	Page          int `json:"page"`
	Size          int `json:"size"`
}
