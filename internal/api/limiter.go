package api

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"
)

// Rate limit tiers
const (
	// Reads: detail, list and popup refetches after every invalidation
	limitRead = rate.Limit(20)
	burstRead = 40

	// Writes (default, overridden by config)
	limitWrite = rate.Limit(10)
	burstWrite = 20
)

type tier string

const (
	tierRead  tier = "read"
	tierWrite tier = "write"
)

// throttle keeps one token bucket per tier so a burst of refetches
// never delays a mutation and the other way around.
type throttle struct {
	limiters map[tier]*rate.Limiter
}

func newThrottle(writeLimit float64, writeBurst int) *throttle {
	limit, burst := limitWrite, burstWrite
	if writeLimit > 0 {
		limit = rate.Limit(writeLimit)
	}
	if writeBurst > 0 {
		burst = writeBurst
	}

	return &throttle{limiters: map[tier]*rate.Limiter{
		tierRead:  rate.NewLimiter(limitRead, burstRead),
		tierWrite: rate.NewLimiter(limit, burst),
	}}
}

// resolveTier determines which bucket a request draws from.
func resolveTier(method string) tier {
	switch method {
	case http.MethodGet, http.MethodHead:
		return tierRead
	default:
		return tierWrite
	}
}

// wait blocks until the request's tier allows it or ctx is done.
func (t *throttle) wait(ctx context.Context, method string) error {
	return t.limiters[resolveTier(method)].Wait(ctx)
}
