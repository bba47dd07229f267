package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"goldfeed/internal/account"
	"goldfeed/internal/provider"
	"goldfeed/internal/quota"
)

// Resolver is the price feed the gate consults. *feed.Aggregator implements it.
type Resolver interface {
	Resolve(ctx context.Context, symbol string) (provider.Quote, bool, error)
}

// Outcome is a granted analysis request: the resolved quote plus the quota
// state after the reservation.
type Outcome struct {
	Quote     provider.Quote `json:"quote"`
	Stale     bool           `json:"stale"`
	Tier      account.Tier   `json:"tier"`
	Remaining int            `json:"remaining"`
	Reason    string         `json:"reason,omitempty"`
}

// Gate composes the quota decision with price resolution to decide whether
// an analysis request proceeds to the external analysis engine.
type Gate struct {
	quota *quota.Manager
	feed  Resolver
}

func NewGate(q *quota.Manager, f Resolver) *Gate {
	return &Gate{quota: q, feed: f}
}

// RequestAnalysis reserves a quota slot for the user and resolves the
// symbol's current price. The quota is checked first, so a denied user never
// touches the price system. If price resolution fails, the reservation is
// refunded: the user does not lose quota for an analysis that never produced
// output.
//
// On success the caller owns the reservation and must finalize it with
// Commit once the analysis text is produced, or refund it with Release if
// the downstream engine fails.
func (g *Gate) RequestAnalysis(ctx context.Context, userID uuid.UUID, symbol string) (Outcome, error) {
	dec, err := g.quota.CheckAndReserve(ctx, userID, time.Now())
	if err != nil {
		return Outcome{Tier: dec.Tier, Remaining: dec.Remaining, Reason: dec.Reason}, err
	}

	q, stale, err := g.feed.Resolve(ctx, symbol)
	if err != nil {
		// Refund even when the caller's context is already gone; a
		// reservation is never silently leaked.
		rctx := context.WithoutCancel(ctx)
		if rerr := g.quota.Release(rctx, userID); rerr != nil {
			log.Printf("dispatch: release after failed resolve for %s: %v", userID, rerr)
		}
		return Outcome{Tier: dec.Tier, Remaining: dec.Remaining}, err
	}

	return Outcome{
		Quote:     q,
		Stale:     stale,
		Tier:      dec.Tier,
		Remaining: dec.Remaining,
	}, nil
}

// Commit finalizes a reservation after the analysis succeeded.
func (g *Gate) Commit(ctx context.Context, userID uuid.UUID) error {
	return g.quota.Commit(ctx, userID)
}

// Release refunds a reservation after the analysis failed.
func (g *Gate) Release(ctx context.Context, userID uuid.UUID) error {
	return g.quota.Release(context.WithoutCancel(ctx), userID)
}
