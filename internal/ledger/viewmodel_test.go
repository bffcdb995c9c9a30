package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/hoaboard/hoaboard/internal/shared"
)

func TestLoadPeriodAbsentYieldsEmptyProjection(t *testing.T) {
	store := newFakeStore()
	vm := NewViewModel(store, nil)

	if err := vm.LoadPeriod(context.Background(), "2030"); err != nil {
		t.Fatalf("load absent period: %v", err)
	}

	doc := vm.Projection()
	if doc == nil {
		t.Fatalf("expected projection after load")
	}
	if len(doc.Record) != 0 {
		t.Fatalf("expected empty record, got %d members", len(doc.Record))
	}
	for _, name := range SlotNames {
		if doc.Rates[name] != 0 {
			t.Fatalf("expected zero rate for %s", name)
		}
	}
	totals := vm.Totals()
	if totals.TotalDuesPaid != 0 || totals.TotalFeePaid != 0 {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
}

func TestLoadPeriodStoreErrorRetainsProjection(t *testing.T) {
	store := newFakeStore()
	store.seed(seedDocument())
	vm := NewViewModel(store, nil)

	if err := vm.LoadPeriod(context.Background(), "2024"); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	store.readErr = errors.New("connection refused")
	err := vm.LoadPeriod(context.Background(), "2024")
	if !errors.Is(err, shared.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	// Previous projection must survive the failed refresh.
	doc := vm.Projection()
	if doc == nil || doc.Period != "2024" {
		t.Fatalf("previous projection lost")
	}
	if _, ok := doc.Record["Dela Cruz"]; !ok {
		t.Fatalf("previous record lost")
	}
}

func TestLoadPeriodWritesBackStaleSummary(t *testing.T) {
	store := newFakeStore()
	doc := seedDocument()
	doc.Record["Dela Cruz"]["Jan"] = Slot{Paid: true, Amount: 500}
	store.seed(doc)
	// Simulate a lost writeback: the stored summary disagrees with the fold.
	store.mu.Lock()
	store.docs["2024"].TotalDuesPaid = 0
	store.mu.Unlock()

	vm := NewViewModel(store, nil)
	if err := vm.LoadPeriod(context.Background(), "2024"); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := store.stored("2024").TotalDuesPaid; got != 500 {
		t.Fatalf("expected summary writeback 500, got %v", got)
	}
}

func TestSummaryWritebackFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	doc := seedDocument()
	doc.Record["Dela Cruz"]["Jan"] = Slot{Paid: true, Amount: 500}
	store.seed(doc)
	store.mu.Lock()
	store.docs["2024"].TotalDuesPaid = 0
	store.mu.Unlock()
	store.summaryErr = errors.New("connection refused")

	vm := NewViewModel(store, nil)
	// Fire-and-forget: the load itself must still succeed.
	if err := vm.LoadPeriod(context.Background(), "2024"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := vm.Totals().TotalDuesPaid; got != 500 {
		t.Fatalf("expected in-memory totals 500, got %v", got)
	}
}
