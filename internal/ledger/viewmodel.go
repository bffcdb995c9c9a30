package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hoaboard/hoaboard/internal/shared"
)

// ViewModel is the live, read-mostly projection of one period's ledger and
// rate table. It is hydrated from the Store and kept current by Run's
// one-way subscription; an active edit session suspends refreshes so local
// edits are not clobbered by remote changes.
type ViewModel struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	doc     *Document
	editing bool
}

// NewViewModel constructs an empty, not yet hydrated view model.
func NewViewModel(store Store, logger *slog.Logger) *ViewModel {
	return &ViewModel{store: store, logger: logger}
}

// LoadPeriod replaces the projection with the store's document for period.
// An absent period yields an empty record and all-zero rates. A store error
// is surfaced as shared.ErrStoreUnavailable and the previous projection is
// retained.
func (vm *ViewModel) LoadPeriod(ctx context.Context, period string) error {
	doc, err := vm.store.ReadPeriod(ctx, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			doc = NewDocument(period)
		} else {
			return fmt.Errorf("%w: load period %s: %v", shared.ErrStoreUnavailable, period, err)
		}
	}

	vm.mu.Lock()
	vm.doc = doc
	stale := vm.summaryStale()
	vm.mu.Unlock()

	if stale {
		vm.writeSummary(ctx)
	}
	return nil
}

// Period returns the key of the loaded period, empty before the first load.
func (vm *ViewModel) Period() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.doc == nil {
		return ""
	}
	return vm.doc.Period
}

// Projection returns a deep copy of the current document, or nil before the
// first load.
func (vm *ViewModel) Projection() *Document {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.doc.Clone()
}

// Editing reports whether an edit session currently owns the projection.
func (vm *ViewModel) Editing() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.editing
}

// Totals folds the current projection into the running sums.
func (vm *ViewModel) Totals() Totals {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.doc == nil {
		return Totals{}
	}
	return vm.doc.Record.ComputeTotals()
}

// Run drives the one-way subscription: every change notification for the
// loaded period triggers a reload while no edit session is active. It blocks
// until ctx is done.
func (vm *ViewModel) Run(ctx context.Context) error {
	period := vm.Period()
	if period == "" {
		return errors.New("ledger: view model not loaded")
	}
	return vm.store.Subscribe(ctx, period, func(p string) {
		vm.mu.Lock()
		editing := vm.editing
		vm.mu.Unlock()
		if editing {
			return
		}
		if err := vm.LoadPeriod(ctx, p); err != nil && vm.logger != nil {
			vm.logger.Warn("refresh period", slog.String("period", p), slog.Any("error", err))
		}
	})
}

// summaryStale reports whether the stored summary fields diverge from the
// fold over the projection. Caller holds vm.mu.
func (vm *ViewModel) summaryStale() bool {
	if vm.doc == nil {
		return false
	}
	t := vm.doc.Record.ComputeTotals()
	return t.TotalDuesPaid != vm.doc.TotalDuesPaid || t.TotalFeePaid != vm.doc.TotalFeePaid
}

// writeSummary persists recomputed totals back to the period's summary
// fields. Fire-and-forget: failure is logged, not retried.
func (vm *ViewModel) writeSummary(ctx context.Context) {
	vm.mu.Lock()
	if vm.doc == nil {
		vm.mu.Unlock()
		return
	}
	period := vm.doc.Period
	totals := vm.doc.Record.ComputeTotals()
	vm.doc.TotalDuesPaid = totals.TotalDuesPaid
	vm.doc.TotalFeePaid = totals.TotalFeePaid
	vm.mu.Unlock()

	if err := vm.store.WriteSummary(ctx, period, totals); err != nil && !errors.Is(err, shared.ErrNotFound) {
		if vm.logger != nil {
			vm.logger.Warn("write summary", slog.String("period", period), slog.Any("error", err))
		}
	}
}
