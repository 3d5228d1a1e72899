// Package billing wraps an external ledger with an idempotent deduct/refund
// gate for chargeable memory operations. The operation-to-billing-key table
// is plain data consulted per call; nothing is attached to routes.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDeclined indicates insufficient quota. The operation that would have
// been charged never executes.
var ErrDeclined = errors.New("billing: declined")

// Ledger is the external billing collaborator.
type Ledger interface {
	Deduct(ctx context.Context, actor, key string, amount int64) error
	Refund(ctx context.Context, actor, key string, amount int64) error
}

// Cost names the billing key and price of one operation category.
type Cost struct {
	Key    string
	Amount int64
}

// DefaultCosts maps service operation ids to billing keys and prices.
// Operations absent from the table, or priced at zero, skip the ledger.
var DefaultCosts = map[string]Cost{
	"memories.create": {Key: "memory_add", Amount: 1},
	"memories.update": {Key: "memory_update", Amount: 1},
	"memories.search": {Key: "memory_search", Amount: 1},
}

// Gate applies the cost table and pairs every deduction with at most one
// refund. The idempotency key is "{billingKey}:{referenceID}"; a duplicate
// refund against an already-refunded key reports success and credits
// nothing.
type Gate struct {
	ledger Ledger
	costs  map[string]Cost
	logger *slog.Logger

	mu       sync.Mutex
	refunded map[string]struct{}
}

// NewGate creates a Gate. A nil costs map uses DefaultCosts.
func NewGate(ledger Ledger, costs map[string]Cost, logger *slog.Logger) *Gate {
	if costs == nil {
		costs = DefaultCosts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		ledger:   ledger,
		costs:    costs,
		logger:   logger,
		refunded: make(map[string]struct{}),
	}
}

// DeductOrSkip charges the operation's cost against the ledger. Operations
// with no cost (or cost <= 0) are a no-op with charged=false. A declined
// deduction returns ErrDeclined.
func (g *Gate) DeductOrSkip(ctx context.Context, actor, operation, referenceID string) (bool, int64, error) {
	cost, ok := g.costs[operation]
	if !ok || cost.Amount <= 0 {
		return false, 0, nil
	}

	if err := g.ledger.Deduct(ctx, actor, ledgerKey(cost.Key, referenceID), cost.Amount); err != nil {
		if errors.Is(err, ErrDeclined) {
			return false, 0, fmt.Errorf("%w: %s", ErrDeclined, operation)
		}
		return false, 0, fmt.Errorf("billing: deduct %s: %w", operation, err)
	}
	return true, cost.Amount, nil
}

// RefundOnFailure credits back a previous deduction. Refunding the same
// reference twice is success with exactly one net credit.
func (g *Gate) RefundOnFailure(ctx context.Context, actor, operation, referenceID string, amount int64) error {
	cost, ok := g.costs[operation]
	if !ok || amount <= 0 {
		return nil
	}

	key := ledgerKey(cost.Key, referenceID)

	g.mu.Lock()
	if _, done := g.refunded[key]; done {
		g.mu.Unlock()
		g.logger.Debug("duplicate refund ignored", "key", key)
		return nil
	}
	g.refunded[key] = struct{}{}
	g.mu.Unlock()

	if err := g.ledger.Refund(ctx, actor, key, amount); err != nil {
		// The key stays marked: the ledger call may have applied even when
		// the response was lost, and a retried credit must not double-pay.
		return fmt.Errorf("billing: refund %s: %w", operation, err)
	}
	return nil
}

func ledgerKey(billingKey, referenceID string) string {
	return billingKey + ":" + referenceID
}
