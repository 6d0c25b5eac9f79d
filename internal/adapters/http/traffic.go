package httpadapter

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/catalog-assistant/internal/config"
)

const (
	rejectRateLimited = "rate_limited"
	rejectSaturated   = "saturated"
)

// trafficGate guards the chat endpoints with a token bucket followed by a cap
// on concurrent requests. A non-positive setting disables that half.
type trafficGate struct {
	limiter  *rate.Limiter
	slots    chan struct{}
	wait     time.Duration
	onReject func(reason string)
}

func newTrafficGate(cfg config.Config, onReject func(reason string)) *trafficGate {
	g := &trafficGate{wait: cfg.APIBackpressureWait, onReject: onReject}
	if cfg.APIRateLimitRPS > 0 {
		burst := cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.APIRateLimitRPS))
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), burst)
	}
	if cfg.APIMaxInFlight > 0 {
		g.slots = make(chan struct{}, cfg.APIMaxInFlight)
	}
	return g
}

func (g *trafficGate) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay, ok := g.allow(); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(delay.Seconds())))))
			g.reject(w, r, http.StatusTooManyRequests, rejectRateLimited, "rate limit exceeded")
			return
		}
		release, ok := g.acquire(r.Context())
		if !ok {
			if r.Context().Err() == nil {
				g.reject(w, r, http.StatusServiceUnavailable, rejectSaturated, "server is overloaded, retry later")
			}
			return
		}
		defer release()
		next.ServeHTTP(w, r)
	})
}

// allow takes a token without waiting. When none is available it returns the
// time until the next one.
func (g *trafficGate) allow() (time.Duration, bool) {
	if g.limiter == nil {
		return 0, true
	}
	reservation := g.limiter.Reserve()
	if !reservation.OK() {
		return time.Second, false
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return delay, false
	}
	return 0, true
}

// acquire waits up to g.wait for a free slot.
func (g *trafficGate) acquire(ctx context.Context) (func(), bool) {
	if g.slots == nil {
		return func() {}, true
	}
	release := func() { <-g.slots }
	select {
	case g.slots <- struct{}{}:
		return release, true
	default:
	}
	if g.wait <= 0 {
		return nil, false
	}

	timer := time.NewTimer(g.wait)
	defer timer.Stop()
	select {
	case g.slots <- struct{}{}:
		return release, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (g *trafficGate) reject(w http.ResponseWriter, r *http.Request, status int, reason, message string) {
	slog.Warn("http_request_rejected",
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"reason", reason,
	)
	if g.onReject != nil {
		g.onReject(reason)
	}
	writeError(w, status, message)
}
