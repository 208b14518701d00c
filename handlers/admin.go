package handlers

import (
	"net/http"

	"github.com/arkantrust/payment-intents/models"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// auditLog handles GET /api/admin/audit?page=&size=, newest entry first.
func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.merchant(w, r); !ok {
		return
	}
	q := r.URL.Query()
	page, err := parseInt(q.Get("page"), 0)
	if err != nil || page < 0 {
		h.fail(w, r, invalid("Validation failed", fieldError{Field: "page", Message: "must be a non-negative integer"}))
		return
	}
	size, err := parseInt(q.Get("size"), defaultAuditPageSize)
	if err != nil {
		h.fail(w, r, invalid("Validation failed", fieldError{Field: "size", Message: "must be an integer"}))
		return
	}
	switch {
	case size <= 0:
		size = defaultAuditPageSize
	case size > maxAuditPageSize:
		size = maxAuditPageSize
	}

	entries, total, err := h.audit.List(page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, pageResponse[models.AuditEntry]{
		Content:       entries,
		TotalElements: total,
		Page:          page,
		Size:          size,
	})
}
