// Package policy decides whether a bot is permitted to act right now. The
// settlement core never consults it directly; the request layer asks for a
// yes/no answer before invoking any operation.
package policy

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Action identifies the operation class a bot is attempting.
type Action string

const (
	ActionTrade        Action = "trade"
	ActionCreateMarket Action = "create_market"
	ActionResolve      Action = "resolve"
	ActionDiscuss      Action = "discuss"
	ActionDeposit      Action = "deposit"
)

// Guard enforces a per-bot request budget with a token bucket. One bucket
// per bot, shared across actions; the budget refills at
// maxRequestsPerMinute.
type Guard struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
	perMin   int
}

// NewGuard creates a guard allowing maxRequestsPerMinute actions per bot.
// A non-positive budget disables limiting.
func NewGuard(maxRequestsPerMinute int) *Guard {
	return &Guard{
		limiters: make(map[uuid.UUID]*rate.Limiter),
		perMin:   maxRequestsPerMinute,
	}
}

// MayAct reports whether the bot may perform the action now, consuming one
// token when it may.
func (g *Guard) MayAct(botID uuid.UUID, _ Action) bool {
	if g.perMin <= 0 {
		return true
	}

	g.mu.Lock()
	limiter, ok := g.limiters[botID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(g.perMin)/60.0), g.perMin)
		g.limiters[botID] = limiter
	}
	g.mu.Unlock()

	return limiter.Allow()
}
