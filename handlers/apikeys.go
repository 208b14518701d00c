package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arkantrust/payment-intents/models"
)

type apiKeyResponse struct {
	ID        string              `json:"id"`
	KeyPrefix string              `json:"keyPrefix"`
	Status    models.APIKeyStatus `json:"status"`
	CreatedAt time.Time           `json:"createdAt"`
	RevokedAt *time.Time          `json:"revokedAt,omitempty"`
}

// newAPIKeyResponse masks everything past the stored prefix.
func newAPIKeyResponse(k *models.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:        k.ID,
		KeyPrefix: k.Prefix + "****",
		Status:    k.Status,
		CreatedAt: k.CreatedAt,
		RevokedAt: k.RevokedAt,
	}
}

type createAPIKeyResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	KeyPrefix string `json:"keyPrefix"`
	Message   string `json:"message"`
}

// createAPIKey handles POST /api/apikeys. The secret is in this response and
// nowhere else.
func (h *Handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	created, err := h.keys.Create(r.Context(), merchant)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		ID:        created.Key.ID,
		Key:       created.Secret,
		KeyPrefix: created.Key.Prefix,
		Message:   "Store this key securely. It will not be shown again.",
	})
}

func (h *Handler) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.List(r.Context(), merchant)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]apiKeyResponse, len(keys))
	for i := range keys {
		out[i] = newAPIKeyResponse(&keys[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	key, err := h.keys.Revoke(r.Context(), merchant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAPIKeyResponse(key))
}
