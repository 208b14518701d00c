package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxBodyBytes bounds request bodies when RouterConfig leaves it zero.
const DefaultMaxBodyBytes = 1 << 20

// RouterConfig carries the HTTP-level settings of NewRouter.
type RouterConfig struct {
	JWTSecret     []byte
	Issuer        string
	AllowedOrigin string
	MaxBodyBytes  int64

	// RateLimit applies to /api/payment_intents per merchant. Nil disables
	// it.
	RateLimit *RateLimit
}

type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// NewRouter mounts every route of the API.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(logRequests(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(cfg.AllowedOrigin))
	r.Use(limitBody(cfg.MaxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Provider callbacks are not merchant-authenticated.
	r.Post("/api/webhooks/provider", h.providerWebhook)

	r.Group(func(r chi.Router) {
		r.Use(authenticate(cfg.JWTSecret, cfg.Issuer, h.keys, h.logger))

		r.Route("/api/payment_intents", func(r chi.Router) {
			if cfg.RateLimit != nil {
				r.Use(newMerchantLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).middleware)
			}
			r.Post("/", h.createIntent)
			r.Get("/", h.listIntents)
			r.Get("/{id}", h.getIntent)
			r.Post("/{id}/confirm", h.confirmIntent)
			r.Post("/{id}/cancel", h.cancelIntent)
			r.Get("/{id}/deliveries", h.intentDeliveries)
		})

		r.Get("/api/events/payment_intents/{id}", h.intentEvents)
		r.Get("/api/admin/audit", h.auditLog)

		r.Route("/api/apikeys", func(r chi.Router) {
			r.Post("/", h.createAPIKey)
			r.Get("/", h.listAPIKeys)
			r.Post("/{id}/revoke", h.revokeAPIKey)
		})
	})

	return r
}
