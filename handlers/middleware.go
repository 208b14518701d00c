package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/arkantrust/payment-intents/apikeys"
	"github.com/arkantrust/payment-intents/auth"
)

// cors lets browser clients on other origins call the API and read the
// idempotency headers.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+apikeys.Header+", "+IdempotencyKeyHeader+", "+middleware.RequestIDHeader)
			h.Set("Access-Control-Expose-Headers", ReplayedHeader+", "+middleware.RequestIDHeader+", Retry-After")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// echoRequestID returns the correlation id assigned by middleware.RequestID
// to the caller.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the merchant from the bearer token or, when there is
// none, from the X-API-KEY header.
func authenticate(secret []byte, issuer string, keys *apikeys.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var merchant string
			token, err := auth.BearerToken(r)
			switch {
			case err == nil:
				merchant, err = auth.Parse(secret, issuer, token)
			case errors.Is(err, auth.ErrMissingToken) && keys != nil && r.Header.Get(apikeys.Header) != "":
				merchant, err = keys.Authenticate(r.Context(), r.Header.Get(apikeys.Header))
			}
			if err == nil {
				next.ServeHTTP(w, r.WithContext(auth.WithMerchant(r.Context(), merchant)))
				return
			}
			if !errors.Is(err, auth.ErrMissingToken) {
				logger.DebugContext(r.Context(), "rejected credentials", "err", err,
					"request_id", middleware.GetReqID(r.Context()))
			}
			writeProblem(w, r, http.StatusUnauthorized, "Authentication required", nil)
		})
	}
}

const (
	limiterIdle = 30 * time.Minute
	sweepEvery  = 5 * time.Minute
)

// merchantLimiter rate limits each merchant independently. Limiters idle for
// longer than idle are dropped by a sweep that runs at most every
// sweepEvery, piggybacking on requests.
type merchantLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	// merchant id -> *limiterEntry
	limiters  sync.Map
	lastSweep atomic.Int64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

func newMerchantLimiter(rps float64, burst int) *merchantLimiter {
	l := &merchantLimiter{rps: rate.Limit(rps), burst: burst, idle: limiterIdle, now: time.Now}
	// A dropped limiter must already have refilled, or dropping it would
	// hand out a fresh burst early.
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > l.idle {
		l.idle = refill
	}
	l.lastSweep.Store(l.now().UnixNano())
	return l
}

func (l *merchantLimiter) get(merchant string) *rate.Limiter {
	now := l.now()
	l.sweep(now)

	v, ok := l.limiters.Load(merchant)
	if !ok {
		v, _ = l.limiters.LoadOrStore(merchant, &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)})
	}
	e := v.(*limiterEntry)
	e.lastSeen.Store(now.UnixNano())
	return e.limiter
}

func (l *merchantLimiter) sweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(sweepEvery) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-l.idle).UnixNano()
	l.limiters.Range(func(k, v any) bool {
		if v.(*limiterEntry).lastSeen.Load() < cutoff {
			l.limiters.Delete(k)
		}
		return true
	})
}

// retryAfter is the number of whole seconds until one token is available.
func (l *merchantLimiter) retryAfter() int {
	return int(math.Max(1, math.Ceil(1/float64(l.rps))))
}

func (l *merchantLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchant, _ := auth.Merchant(r.Context())
		if !l.get(merchant).Allow() {
			secs := l.retryAfter()
			w.Header().Set("Retry-After", fmt.Sprint(secs))
			writeProblem(w, r, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", secs), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
