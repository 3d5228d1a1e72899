package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestDeductOrSkip_ChargesConfiguredOperation(t *testing.T) {
	t.Parallel()

	ledger := NewInMemoryLedger(10)
	gate := NewGate(ledger, nil, nil)

	charged, amount, err := gate.DeductOrSkip(context.Background(), "actor", "memories.create", "ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !charged || amount != 1 {
		t.Errorf("charged=%v amount=%d, want charged=true amount=1", charged, amount)
	}
	if got := ledger.Balance("actor"); got != 9 {
		t.Errorf("balance = %d, want 9", got)
	}
}

func TestDeductOrSkip_UnknownOperationSkips(t *testing.T) {
	t.Parallel()

	ledger := NewInMemoryLedger(10)
	gate := NewGate(ledger, nil, nil)

	charged, amount, err := gate.DeductOrSkip(context.Background(), "actor", "memories.history", "ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if charged || amount != 0 {
		t.Errorf("charged=%v amount=%d, want skip", charged, amount)
	}
	if got := ledger.Balance("actor"); got != 10 {
		t.Errorf("balance = %d, want untouched 10", got)
	}
}

func TestDeductOrSkip_ZeroCostSkips(t *testing.T) {
	t.Parallel()

	ledger := NewInMemoryLedger(10)
	gate := NewGate(ledger, map[string]Cost{
		"memories.create": {Key: "memory_add", Amount: 0},
	}, nil)

	charged, _, err := gate.DeductOrSkip(context.Background(), "actor", "memories.create", "ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if charged {
		t.Error("zero-cost operation must not charge")
	}
}

func TestDeductOrSkip_Declined(t *testing.T) {
	t.Parallel()

	gate := NewGate(NewInMemoryLedger(0), nil, nil)

	_, _, err := gate.DeductOrSkip(context.Background(), "actor", "memories.create", "ref-1")
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
}

func TestRefundOnFailure_DuplicateIsSuccessWithOneCredit(t *testing.T) {
	t.Parallel()

	ledger := NewInMemoryLedger(10)
	gate := NewGate(ledger, nil, nil)
	ctx := context.Background()

	if _, _, err := gate.DeductOrSkip(ctx, "actor", "memories.create", "ref-1"); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if got := ledger.Balance("actor"); got != 9 {
		t.Fatalf("balance after deduct = %d, want 9", got)
	}

	if err := gate.RefundOnFailure(ctx, "actor", "memories.create", "ref-1", 1); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if err := gate.RefundOnFailure(ctx, "actor", "memories.create", "ref-1", 1); err != nil {
		t.Fatalf("duplicate refund must succeed, got %v", err)
	}

	if got := ledger.Balance("actor"); got != 10 {
		t.Errorf("balance = %d, want exactly one net credit back to 10", got)
	}
}

func TestRefundOnFailure_DistinctReferencesBothCredit(t *testing.T) {
	t.Parallel()

	ledger := NewInMemoryLedger(10)
	gate := NewGate(ledger, nil, nil)
	ctx := context.Background()

	for _, ref := range []string{"ref-1", "ref-2"} {
		if _, _, err := gate.DeductOrSkip(ctx, "actor", "memories.search", ref); err != nil {
			t.Fatalf("deduct %s: %v", ref, err)
		}
	}
	for _, ref := range []string{"ref-1", "ref-2"} {
		if err := gate.RefundOnFailure(ctx, "actor", "memories.search", ref, 1); err != nil {
			t.Fatalf("refund %s: %v", ref, err)
		}
	}
	if got := ledger.Balance("actor"); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
}

func TestRefundOnFailure_ConcurrentDuplicates(t *testing.T) {
	t.Parallel()

	ledger := NewInMemoryLedger(10)
	gate := NewGate(ledger, nil, nil)
	ctx := context.Background()

	if _, _, err := gate.DeductOrSkip(ctx, "actor", "memories.update", "ref-1"); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gate.RefundOnFailure(ctx, "actor", "memories.update", "ref-1", 1)
		}()
	}
	wg.Wait()

	if got := ledger.Balance("actor"); got != 10 {
		t.Errorf("balance = %d, want 10 after concurrent duplicate refunds", got)
	}
}

func TestLedger_ActorsAreIsolated(t *testing.T) {
	t.Parallel()

	ledger := NewInMemoryLedger(5)
	gate := NewGate(ledger, nil, nil)
	ctx := context.Background()

	if _, _, err := gate.DeductOrSkip(ctx, "a", "memories.create", "ref-1"); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if got := ledger.Balance("b"); got != 5 {
		t.Errorf("actor b balance = %d, want untouched 5", got)
	}
}
