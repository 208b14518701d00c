package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/arkantrust/payment-intents/idempotency"
	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/payments"
)

type createIntentRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Description       string          `json:"description"`
	CustomerReference string          `json:"customerReference"`
}

// createIntent handles POST /api/payment_intents.
//
// Without an Idempotency-Key every call creates a new intent. With one, the
// first call creates (201) and retries with the same body return the same
// intent (200). The same key with a different body is rejected with 422.
func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validateBody(createIntentLoader, body); err != nil {
		h.fail(w, r, err)
		return
	}
	var req createIntentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.fail(w, r, invalid("Validation failed", fieldError{Field: "amount", Message: "must be a decimal number"}))
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	var fingerprint string
	if key != "" {
		if fingerprint, err = idempotency.CanonicalFingerprint(body); err != nil {
			h.fail(w, r, invalid("malformed JSON body"))
			return
		}
	}

	intent, created, err := h.orch.Create(r.Context(), payments.CreateParams{
		MerchantID:        merchant,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Description:       req.Description,
		CustomerReference: req.CustomerReference,
		IdempotencyKey:    key,
		Fingerprint:       fingerprint,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if key != "" {
		setReplayed(w, !created)
	}
	if created {
		writeJSON(w, http.StatusCreated, newIntentResponse(intent))
	} else {
		writeJSON(w, http.StatusOK, newIntentResponse(intent))
	}
}

// confirmIntent handles POST /api/payment_intents/{id}/confirm.
//
// The body, describing the payment method, is optional. When present it is
// part of the request fingerprint.
func (h *Handler) confirmIntent(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var fingerprint string
	if len(bytes.TrimSpace(body)) > 0 {
		if err := validateBody(confirmIntentLoader, body); err != nil {
			h.fail(w, r, err)
			return
		}
		if fingerprint, err = idempotency.CanonicalFingerprint(body); err != nil {
			h.fail(w, r, invalid("malformed JSON body"))
			return
		}
	}

	intent, confirmed, err := h.orch.Confirm(r.Context(), payments.ConfirmParams{
		MerchantID:     merchant,
		IntentID:       chi.URLParam(r, "id"),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
		Fingerprint:    fingerprint,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	setReplayed(w, !confirmed)
	writeJSON(w, http.StatusOK, newIntentResponse(intent))
}

// cancelIntent handles POST /api/payment_intents/{id}/cancel.
func (h *Handler) cancelIntent(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	intent, err := h.orch.Cancel(r.Context(), merchant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIntentResponse(intent))
}

// getIntent handles GET /api/payment_intents/{id}.
func (h *Handler) getIntent(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	intent, err := h.orch.Get(r.Context(), merchant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIntentResponse(intent))
}

// listIntents handles GET /api/payment_intents?status=&from=&to=&page=&size=.
// from and to are RFC 3339 timestamps bounding the creation time.
func (h *Handler) listIntents(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var (
		params payments.ListParams
		fields []fieldError
		err    error
	)
	if s := q.Get("status"); s != "" {
		params.Status = models.Status(strings.ToUpper(s))
		if !params.Status.Valid() {
			fields = append(fields, fieldError{Field: "status", Message: "unknown status " + s})
		}
	}
	if params.From, err = parseTime(q.Get("from")); err != nil {
		fields = append(fields, fieldError{Field: "from", Message: "must be an RFC 3339 timestamp"})
	}
	if params.To, err = parseTime(q.Get("to")); err != nil {
		fields = append(fields, fieldError{Field: "to", Message: "must be an RFC 3339 timestamp"})
	}
	if params.Page, err = parseInt(q.Get("page"), 0); err != nil || params.Page < 0 {
		fields = append(fields, fieldError{Field: "page", Message: "must be a non-negative integer"})
	}
	if params.Size, err = parseInt(q.Get("size"), payments.DefaultPageSize); err != nil {
		fields = append(fields, fieldError{Field: "size", Message: "must be an integer"})
	}
	if len(fields) > 0 {
		h.fail(w, r, invalid("Validation failed", fields...))
		return
	}

	page, err := h.orch.List(r.Context(), merchant, params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := pageResponse[intentResponse]{
		Content:       make([]intentResponse, len(page.Items)),
		TotalElements: page.Total,
		Page:          page.Page,
		Size:          page.Size,
	}
	for i := range page.Items {
		out.Content[i] = newIntentResponse(&page.Items[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// intentEvents handles GET /api/events/payment_intents/{id}.
func (h *Handler) intentEvents(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	events, err := h.orch.Events(r.Context(), merchant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]eventResponse, len(events))
	for i, ev := range events {
		out[i] = eventResponse{ID: ev.Sequence, Type: ev.Type, Payload: ev.Payload, CreatedAt: ev.CreatedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

// intentDeliveries handles GET /api/payment_intents/{id}/deliveries: the
// provider callbacks that moved the intent.
func (h *Handler) intentDeliveries(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}
	deliveries, err := h.orch.Deliveries(r.Context(), merchant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if deliveries == nil {
		deliveries = []models.WebhookDelivery{}
	}
	writeJSON(w, http.StatusOK, deliveries)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
