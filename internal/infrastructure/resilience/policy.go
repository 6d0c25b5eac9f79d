package resilience

import "time"

// RetryPolicy bounds how often and how fast a failed call is repeated.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy configures the per-operation circuit breaker.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// Config is shared by the generation, index and queue adapters.
// Zero fields fall back to DefaultConfig.
type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     time.Second,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

// LogAttrs renders the effective policy for startup logging.
func (c Config) LogAttrs() []any {
	n := c.normalize()
	return []any{
		"retry_max_attempts", n.Retry.MaxAttempts,
		"retry_initial_backoff", n.Retry.InitialBackoff.String(),
		"retry_max_backoff", n.Retry.MaxBackoff.String(),
		"breaker_enabled", n.Breaker.Enabled,
		"breaker_failure_ratio", n.Breaker.FailureRatio,
		"breaker_open_timeout", n.Breaker.OpenTimeout.String(),
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	return Config{
		Retry:   c.Retry.normalize(def.Retry),
		Breaker: c.Breaker.normalize(def.Breaker),
	}
}

func (p RetryPolicy) normalize(def RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	p.MaxBackoff = max(p.MaxBackoff, p.InitialBackoff)
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// next returns the wait after backoff, capped by MaxBackoff.
func (p RetryPolicy) next(backoff time.Duration) time.Duration {
	return min(time.Duration(float64(backoff)*p.Multiplier), p.MaxBackoff)
}

func (p BreakerPolicy) normalize(def BreakerPolicy) BreakerPolicy {
	if p.MinRequests == 0 {
		p.MinRequests = def.MinRequests
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = def.FailureRatio
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = def.OpenTimeout
	}
	if p.HalfOpenMaxCalls == 0 {
		p.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return p
}

// shouldTrip reports whether the observed window warrants opening the breaker.
func (p BreakerPolicy) shouldTrip(requests, failures uint32) bool {
	if requests < p.MinRequests {
		return false
	}
	return float64(failures)/float64(requests) >= p.FailureRatio
}
