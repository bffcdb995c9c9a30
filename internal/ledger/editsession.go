package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/hoaboard/hoaboard/internal/audit"
	"github.com/hoaboard/hoaboard/internal/shared"
)

// State names the edit-session states.
type State string

const (
	// StateViewing is the read-only resting state.
	StateViewing State = "VIEWING"
	// StateEditing is the guarded mutation state; all changes stay local.
	StateEditing State = "EDITING"
	// StatePendingCommit holds a frozen change-set awaiting re-authentication.
	StatePendingCommit State = "PENDING_COMMIT"
)

// Gate re-authenticates the already-signed-in administrator before a
// change-set may be persisted.
type Gate interface {
	Reauthenticate(ctx context.Context, adminID, password string) error
}

// AuditAppender appends the per-cell audit entries for a committed change-set.
type AuditAppender interface {
	AppendBatch(ctx context.Context, entries []audit.Entry) (int, error)
}

// changeSet is the frozen local projection and selection captured at
// RequestCommit.
type changeSet struct {
	doc      *Document
	selected []string
}

// EditSession is the state machine governing the transition between read-only
// viewing and guarded editing of one period. It is ephemeral: created when an
// administrator enters edit mode, destroyed on cancel or successful commit.
// All mutation before commit is local to the view model's projection.
type EditSession struct {
	vm     *ViewModel
	store  Store
	audits AuditAppender
	gate   Gate
	logger *slog.Logger

	adminID   string
	adminName string

	state        State
	snapshot     *Document
	selected     map[string]struct{}
	pendingRates map[string]float64
	pending      *changeSet
	committing   bool
}

// NewEditSession returns a session in the Viewing state bound to a loaded
// view model.
func NewEditSession(vm *ViewModel, store Store, audits AuditAppender, gate Gate, logger *slog.Logger, adminID, adminName string) *EditSession {
	return &EditSession{
		vm:        vm,
		store:     store,
		audits:    audits,
		gate:      gate,
		logger:    logger,
		adminID:   adminID,
		adminName: adminName,
		state:     StateViewing,
	}
}

// State returns the current state.
func (s *EditSession) State() State {
	s.vm.mu.Lock()
	defer s.vm.mu.Unlock()
	return s.state
}

// SelectedCells returns the current selection, sorted.
func (s *EditSession) SelectedCells() []string {
	s.vm.mu.Lock()
	defer s.vm.mu.Unlock()
	return sortedCells(s.selected)
}

// EnterEdit moves Viewing to Editing, taking a deep snapshot of the current
// projection for rollback. No external effect.
func (s *EditSession) EnterEdit() error {
	s.vm.mu.Lock()
	defer s.vm.mu.Unlock()
	if s.state != StateViewing {
		return fmt.Errorf("%w: enter edit from %s", shared.ErrEditState, s.state)
	}
	if s.vm.doc == nil {
		return errors.New("ledger: view model not loaded")
	}
	if s.vm.editing {
		return fmt.Errorf("%w: another session is editing this period", shared.ErrEditState)
	}
	s.snapshot = s.vm.doc.Clone()
	s.selected = make(map[string]struct{})
	s.pendingRates = make(map[string]float64)
	s.state = StateEditing
	s.vm.editing = true
	return nil
}

// ToggleCell flips paid for one member/slot in the local projection. Becoming
// paid assigns the amount from the current rate table; becoming unpaid zeroes
// it. The cell's membership in the selection set is toggled alongside; the
// selection feeds the audit trail at commit time and does not gate whether
// the toggle took effect. Its own inverse: toggling twice restores the prior
// slot. No external effect until commit.
func (s *EditSession) ToggleCell(member, slot string) error {
	s.vm.mu.Lock()
	defer s.vm.mu.Unlock()
	if s.state != StateEditing {
		return fmt.Errorf("%w: toggle in %s", shared.ErrEditState, s.state)
	}
	if !IsSlotName(slot) {
		return fmt.Errorf("%w: unknown slot %q", shared.ErrNotFound, slot)
	}
	row, ok := s.vm.doc.Record[member]
	if !ok {
		return fmt.Errorf("%w: member %q", shared.ErrNotFound, member)
	}

	cell := row[slot]
	if cell.Paid {
		row[slot] = Slot{}
	} else {
		row[slot] = Slot{Paid: true, Amount: s.vm.doc.Rates[slot]}
	}

	id := CellID(member, slot)
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	return nil
}

// BulkMarkSelectedPaid forces every selected cell to paid with the current
// rate. Requires a non-empty selection. Idempotent per cell: already-paid
// selected cells are left untouched.
func (s *EditSession) BulkMarkSelectedPaid() error {
	s.vm.mu.Lock()
	defer s.vm.mu.Unlock()
	if s.state != StateEditing {
		return fmt.Errorf("%w: bulk mark in %s", shared.ErrEditState, s.state)
	}
	if len(s.selected) == 0 {
		return shared.ErrNoSelection
	}
	for id := range s.selected {
		member, slot, err := ParseCellID(id)
		if err != nil {
			continue
		}
		row, ok := s.vm.doc.Record[member]
		if !ok {
			continue
		}
		if cell := row[slot]; !cell.Paid {
			row[slot] = Slot{Paid: true, Amount: s.vm.doc.Rates[slot]}
		}
	}
	return nil
}

// AdjustRate updates the local rate for one slot. Not retroactive: slots
// already marked paid keep their stored amount. The new amount must be finite
// and non-negative, otherwise ErrInvalidAmount and the rate is unchanged.
func (s *EditSession) AdjustRate(slot string, amount float64) error {
	s.vm.mu.Lock()
	defer s.vm.mu.Unlock()
	if s.state != StateEditing {
		return fmt.Errorf("%w: adjust rate in %s", shared.ErrEditState, s.state)
	}
	if !IsSlotName(slot) {
		return fmt.Errorf("%w: unknown slot %q", shared.ErrNotFound, slot)
	}
	if !ValidAmount(amount) {
		return fmt.Errorf("%w: rate %v for %s", shared.ErrInvalidAmount, amount, slot)
	}
	s.vm.doc.Rates[slot] = amount
	s.pendingRates[slot] = amount
	return nil
}

// AdjustHoaRate updates the membership-fee rate.
func (s *EditSession) AdjustHoaRate(amount float64) error {
	return s.AdjustRate(SlotHoa, amount)
}

// RequestCommit freezes the local projection, rate table and selection into a
// pending change-set and moves to PendingCommit. No external effect yet; the
// split lets the UI prompt for a password without losing in-progress edits.
func (s *EditSession) RequestCommit() error {
	s.vm.mu.Lock()
	defer s.vm.mu.Unlock()
	if s.state != StateEditing {
		return fmt.Errorf("%w: request commit in %s", shared.ErrEditState, s.state)
	}
	s.pending = &changeSet{
		doc:      s.vm.doc.Clone(),
		selected: sortedCells(s.selected),
	}
	s.state = StatePendingCommit
	return nil
}

// VerifyAndCommit passes the pending change-set through the gate and, on
// success, writes the updated document to the store and appends one audit
// entry per selected cell. Exactly one verification may be in flight: the
// commit is claimed under the lock before the gate runs, so a double-submit
// is rejected with ErrEditState and the batch is written once. On
// authentication failure the session stays in PendingCommit with the
// change-set retained so the administrator can retry the password without
// redoing the edits. A store failure likewise keeps the session pending for
// a manual retry. A partial audit failure after the ledger write closes the
// session and reports ErrPartialAuditFailure: the ledger is authoritative
// and is not rolled back.
func (s *EditSession) VerifyAndCommit(ctx context.Context, password string) error {
	s.vm.mu.Lock()
	if s.state != StatePendingCommit {
		s.vm.mu.Unlock()
		return fmt.Errorf("%w: commit in %s", shared.ErrEditState, s.state)
	}
	if s.committing {
		s.vm.mu.Unlock()
		return fmt.Errorf("%w: commit already in flight", shared.ErrEditState)
	}
	s.committing = true
	pending := s.pending
	s.vm.mu.Unlock()

	if err := s.gate.Reauthenticate(ctx, s.adminID, password); err != nil {
		s.releaseCommit()
		if errors.Is(err, shared.ErrIncorrectPassword) || errors.Is(err, shared.ErrInvalidCredentials) {
			return shared.ErrIncorrectPassword
		}
		return err
	}

	if err := s.store.WritePeriod(ctx, pending.doc.Clone()); err != nil {
		s.releaseCommit()
		return fmt.Errorf("%w: commit period %s: %v", shared.ErrStoreUnavailable, pending.doc.Period, err)
	}

	entries := s.auditEntries(pending)
	appended, auditErr := s.audits.AppendBatch(ctx, entries)

	s.vm.mu.Lock()
	s.vm.doc = pending.doc
	s.snapshot = nil
	s.selected = nil
	s.pendingRates = nil
	s.pending = nil
	s.state = StateViewing
	s.committing = false
	s.vm.editing = false
	s.vm.mu.Unlock()

	if auditErr != nil {
		if s.logger != nil {
			s.logger.Warn("audit trail incomplete for commit",
				slog.String("period", pending.doc.Period),
				slog.Int("appended", appended),
				slog.Int("expected", len(entries)),
				slog.Any("error", auditErr))
		}
		return fmt.Errorf("%w: %d of %d entries appended", shared.ErrPartialAuditFailure, appended, len(entries))
	}
	return nil
}

// releaseCommit returns the claim taken in VerifyAndCommit after a gate or
// store failure, so the pending change-set can be retried.
func (s *EditSession) releaseCommit() {
	s.vm.mu.Lock()
	s.committing = false
	s.vm.mu.Unlock()
}

// Cancel discards all local mutation and any pending change-set, restoring
// the projection from the snapshot. The snapshot is also written back to the
// store, best effort, so store and view never diverge after a cancel that
// followed an earlier partial write. Valid from Editing or PendingCommit,
// but not while a verification is in flight.
func (s *EditSession) Cancel(ctx context.Context) error {
	s.vm.mu.Lock()
	if s.state != StateEditing && s.state != StatePendingCommit {
		s.vm.mu.Unlock()
		return fmt.Errorf("%w: cancel in %s", shared.ErrEditState, s.state)
	}
	if s.committing {
		s.vm.mu.Unlock()
		return fmt.Errorf("%w: commit already in flight", shared.ErrEditState)
	}
	snapshot := s.snapshot
	s.vm.doc = snapshot.Clone()
	s.snapshot = nil
	s.selected = nil
	s.pendingRates = nil
	s.pending = nil
	s.state = StateViewing
	s.vm.editing = false
	s.vm.mu.Unlock()

	if err := s.store.WritePeriod(ctx, snapshot.Clone()); err != nil && s.logger != nil {
		s.logger.Warn("rollback write after cancel",
			slog.String("period", snapshot.Period),
			slog.Any("error", err))
	}
	return nil
}

// auditEntries derives one entry per selected cell, status taken from the
// cell's final local paid value in the frozen change-set.
func (s *EditSession) auditEntries(cs *changeSet) []audit.Entry {
	batch := uuid.New()
	entries := make([]audit.Entry, 0, len(cs.selected))
	for _, id := range cs.selected {
		member, slot, err := ParseCellID(id)
		if err != nil {
			continue
		}
		status := audit.StatusUnpaid
		if row, ok := cs.doc.Record[member]; ok && row[slot].Paid {
			status = audit.StatusPaid
		}
		entries = append(entries, audit.Entry{
			BatchID: batch,
			Admin:   s.adminName,
			Member:  member,
			Slot:    slot,
			Status:  status,
			Period:  cs.doc.Period,
		})
	}
	return entries
}

func sortedCells(set map[string]struct{}) []string {
	cells := make([]string, 0, len(set))
	for id := range set {
		cells = append(cells, id)
	}
	sort.Strings(cells)
	return cells
}
