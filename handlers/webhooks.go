package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/arkantrust/payment-intents/payments"
)

type providerWebhookRequest struct {
	ProviderPaymentID string `json:"providerPaymentId"`
	Status            string `json:"status"`
	FailureCode       string `json:"failureCode"`
	FailureMessage    string `json:"failureMessage"`
}

// providerWebhook handles POST /api/webhooks/provider.
//
// Callbacks for unknown provider ids are acknowledged with an empty 200 so
// the provider stops redelivering them.
func (h *Handler) providerWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validateBody(providerWebhookLoader, body); err != nil {
		h.fail(w, r, err)
		return
	}
	var req providerWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.fail(w, r, invalid("malformed JSON body"))
		return
	}

	intent, err := h.orch.HandleProviderWebhook(r.Context(), payments.Notification{
		ProviderReference: req.ProviderPaymentID,
		Status:            req.Status,
		FailureCode:       req.FailureCode,
		FailureMessage:    req.FailureMessage,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if intent == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, newIntentResponse(intent))
}
