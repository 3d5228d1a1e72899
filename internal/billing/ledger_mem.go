package billing

import (
	"context"
	"sync"
)

// InMemoryLedger is a thread-safe ledger for development and tests. Each
// actor starts with the configured balance; a deduction that would go
// negative is declined.
type InMemoryLedger struct {
	mu       sync.Mutex
	starting int64
	balances map[string]int64
}

// Compile-time interface guard.
var _ Ledger = (*InMemoryLedger)(nil)

// NewInMemoryLedger creates a ledger granting every actor the starting
// balance. A negative starting balance means unlimited.
func NewInMemoryLedger(starting int64) *InMemoryLedger {
	return &InMemoryLedger{
		starting: starting,
		balances: make(map[string]int64),
	}
}

// Deduct debits the actor, declining when funds are insufficient.
func (l *InMemoryLedger) Deduct(_ context.Context, actor, _ string, amount int64) error {
	if l.starting < 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[actor]
	if !ok {
		balance = l.starting
	}
	if balance < amount {
		return ErrDeclined
	}
	l.balances[actor] = balance - amount
	return nil
}

// Refund credits the actor.
func (l *InMemoryLedger) Refund(_ context.Context, actor, _ string, amount int64) error {
	if l.starting < 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[actor]
	if !ok {
		balance = l.starting
	}
	l.balances[actor] = balance + amount
	return nil
}

// Balance returns the actor's current balance.
func (l *InMemoryLedger) Balance(actor string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, ok := l.balances[actor]; ok {
		return balance
	}
	return l.starting
}
