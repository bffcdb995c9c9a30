package ledger

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoaboard/hoaboard/internal/audit"
	"github.com/hoaboard/hoaboard/internal/shared"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeStore struct {
	mu   sync.Mutex
	docs map[string]*Document

	readErr    error
	writeErr   error
	summaryErr error
	writes     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*Document)}
}

func (f *fakeStore) seed(doc *Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.Period] = doc.Clone()
}

func (f *fakeStore) stored(period string) *Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[period].Clone()
}

func (f *fakeStore) ReadPeriod(ctx context.Context, period string) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	doc, ok := f.docs[period]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := doc.Clone()
	copied.Normalize()
	return copied, nil
}

func (f *fakeStore) WritePeriod(ctx context.Context, doc *Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	totals := doc.Record.ComputeTotals()
	doc.TotalDuesPaid = totals.TotalDuesPaid
	doc.TotalFeePaid = totals.TotalFeePaid
	f.docs[doc.Period] = doc.Clone()
	f.writes++
	return nil
}

func (f *fakeStore) WriteSummary(ctx context.Context, period string, totals Totals) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summaryErr != nil {
		return f.summaryErr
	}
	doc, ok := f.docs[period]
	if !ok {
		return shared.ErrNotFound
	}
	doc.TotalDuesPaid = totals.TotalDuesPaid
	doc.TotalFeePaid = totals.TotalFeePaid
	return nil
}

func (f *fakeStore) ListPeriods(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var periods []string
	for p := range f.docs {
		periods = append(periods, p)
	}
	return periods, nil
}

func (f *fakeStore) Subscribe(ctx context.Context, period string, onChange func(string)) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeGate struct {
	password string
	calls    int
}

func (g *fakeGate) Reauthenticate(ctx context.Context, adminID, password string) error {
	g.calls++
	if password != g.password {
		return shared.ErrIncorrectPassword
	}
	return nil
}

type fakeAudits struct {
	mu        sync.Mutex
	entries   []audit.Entry
	failAfter int // -1 means never fail
}

func (a *fakeAudits) AppendBatch(ctx context.Context, entries []audit.Entry) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, e := range entries {
		if a.failAfter >= 0 && i >= a.failAfter {
			return i, errors.New("audit store down")
		}
		a.entries = append(a.entries, e)
	}
	return len(entries), nil
}

// ============================================================================
// HELPERS
// ============================================================================

func seedDocument() *Document {
	doc := NewDocument("2024")
	doc.Record["Dela Cruz"] = NewMemberRow()
	doc.Rates["Jan"] = 500
	doc.Rates[SlotHoa] = 1200
	return doc
}

func newTestSession(t *testing.T) (*EditSession, *ViewModel, *fakeStore, *fakeGate, *fakeAudits) {
	t.Helper()
	store := newFakeStore()
	store.seed(seedDocument())

	vm := NewViewModel(store, nil)
	require.NoError(t, vm.LoadPeriod(context.Background(), "2024"))

	gate := &fakeGate{password: "letmein"}
	audits := &fakeAudits{failAfter: -1}
	sess := NewEditSession(vm, store, audits, gate, nil, "1", "Admin Reyes")
	return sess, vm, store, gate, audits
}

// ============================================================================
// TESTS
// ============================================================================

func TestEnterEditRequiresViewing(t *testing.T) {
	sess, _, _, _, _ := newTestSession(t)

	require.NoError(t, sess.EnterEdit())
	assert.Equal(t, StateEditing, sess.State())

	err := sess.EnterEdit()
	assert.ErrorIs(t, err, shared.ErrEditState)
}

func TestToggleCellAssignsRateAndSelection(t *testing.T) {
	sess, vm, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())

	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))

	doc := vm.Projection()
	assert.Equal(t, Slot{Paid: true, Amount: 500}, doc.Record["Dela Cruz"]["Jan"])
	assert.Equal(t, []string{"Dela Cruz#Jan"}, sess.SelectedCells())
}

func TestToggleCellIsItsOwnInverse(t *testing.T) {
	sess, vm, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())

	before := vm.Projection().Record["Dela Cruz"]["Jan"]
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))

	after := vm.Projection().Record["Dela Cruz"]["Jan"]
	assert.Equal(t, before, after)
	assert.Empty(t, sess.SelectedCells())
}

func TestToggleCellRejectedOutsideEditing(t *testing.T) {
	sess, _, _, _, _ := newTestSession(t)

	err := sess.ToggleCell("Dela Cruz", "Jan")
	assert.ErrorIs(t, err, shared.ErrEditState)

	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.RequestCommit())

	// A change-set being written must not be mutated underneath.
	assert.ErrorIs(t, sess.ToggleCell("Dela Cruz", "Feb"), shared.ErrEditState)
	assert.ErrorIs(t, sess.AdjustRate("Feb", 400), shared.ErrEditState)
	assert.ErrorIs(t, sess.BulkMarkSelectedPaid(), shared.ErrEditState)
}

func TestToggleCellUnknownMemberOrSlot(t *testing.T) {
	sess, _, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())

	assert.ErrorIs(t, sess.ToggleCell("Nobody", "Jan"), shared.ErrNotFound)
	assert.ErrorIs(t, sess.ToggleCell("Dela Cruz", "Januember"), shared.ErrNotFound)
}

func TestBulkMarkSelectedPaidIsIdempotent(t *testing.T) {
	sess, vm, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())

	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan")) // unpaid again, deselected
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan")) // paid, selected
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Feb")) // paid at rate 0, selected

	require.NoError(t, sess.BulkMarkSelectedPaid())
	once := vm.Projection()
	require.NoError(t, sess.BulkMarkSelectedPaid())
	twice := vm.Projection()

	assert.True(t, reflect.DeepEqual(once.Record, twice.Record))
	assert.Equal(t, Slot{Paid: true, Amount: 500}, twice.Record["Dela Cruz"]["Jan"])
}

func TestBulkMarkRequiresSelection(t *testing.T) {
	sess, _, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())
	assert.ErrorIs(t, sess.BulkMarkSelectedPaid(), shared.ErrNoSelection)
}

func TestAdjustRateValidatesAmount(t *testing.T) {
	sess, vm, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())

	assert.ErrorIs(t, sess.AdjustRate("Jan", -5), shared.ErrInvalidAmount)
	assert.Equal(t, 500.0, vm.Projection().Rates["Jan"])

	require.NoError(t, sess.AdjustRate("Jan", 650))
	assert.Equal(t, 650.0, vm.Projection().Rates["Jan"])
}

func TestAdjustRateIsNotRetroactive(t *testing.T) {
	sess, vm, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())

	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.AdjustRate("Jan", 999))

	// The already-marked slot keeps the amount captured at toggle time.
	assert.Equal(t, Slot{Paid: true, Amount: 500}, vm.Projection().Record["Dela Cruz"]["Jan"])

	// A later toggle pair picks up the new rate.
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	assert.Equal(t, Slot{Paid: true, Amount: 999}, vm.Projection().Record["Dela Cruz"]["Jan"])
}

func TestAdjustHoaRate(t *testing.T) {
	sess, vm, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())

	require.NoError(t, sess.AdjustHoaRate(1500))
	require.NoError(t, sess.ToggleCell("Dela Cruz", SlotHoa))
	assert.Equal(t, Slot{Paid: true, Amount: 1500}, vm.Projection().Record["Dela Cruz"][SlotHoa])
}

func TestCommitScenario(t *testing.T) {
	sess, vm, store, _, audits := newTestSession(t)
	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.RequestCommit())
	assert.Equal(t, StatePendingCommit, sess.State())

	require.NoError(t, sess.VerifyAndCommit(context.Background(), "letmein"))
	assert.Equal(t, StateViewing, sess.State())

	committed := store.stored("2024")
	assert.Equal(t, Slot{Paid: true, Amount: 500}, committed.Record["Dela Cruz"]["Jan"])
	assert.Equal(t, 500.0, committed.TotalDuesPaid)
	assert.Equal(t, 0.0, committed.TotalFeePaid)

	require.Len(t, audits.entries, 1)
	entry := audits.entries[0]
	assert.Equal(t, "Dela Cruz", entry.Member)
	assert.Equal(t, "Jan", entry.Slot)
	assert.Equal(t, audit.StatusPaid, entry.Status)
	assert.Equal(t, "2024", entry.Period)
	assert.Equal(t, "Admin Reyes", entry.Admin)

	assert.Equal(t, Totals{TotalDuesPaid: 500}, vm.Totals())
}

// blockingGate parks the first caller inside the gate until released, so a
// second commit attempt can be issued while the first is still in flight.
type blockingGate struct {
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGate) Reauthenticate(ctx context.Context, adminID, password string) error {
	g.entered <- struct{}{}
	<-g.release
	return nil
}

func TestCommitIsSingleFlight(t *testing.T) {
	store := newFakeStore()
	store.seed(seedDocument())
	audits := &fakeAudits{failAfter: -1}
	gate := &blockingGate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	vm := NewViewModel(store, nil)
	require.NoError(t, vm.LoadPeriod(context.Background(), "2024"))
	sess := NewEditSession(vm, store, audits, gate, nil, "1", "Admin Reyes")

	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.RequestCommit())

	firstErr := make(chan error, 1)
	go func() { firstErr <- sess.VerifyAndCommit(context.Background(), "letmein") }()
	<-gate.entered

	// Double-submit while the first verification holds the claim.
	err := sess.VerifyAndCommit(context.Background(), "letmein")
	assert.ErrorIs(t, err, shared.ErrEditState)

	// Cancel is equally rejected mid-flight.
	err = sess.Cancel(context.Background())
	assert.ErrorIs(t, err, shared.ErrEditState)

	close(gate.release)
	require.NoError(t, <-firstErr)

	assert.Equal(t, StateViewing, sess.State())
	assert.Equal(t, 1, store.writes)
	require.Len(t, audits.entries, 1)
	assert.Equal(t, "Dela Cruz", audits.entries[0].Member)
}

func TestCommitClaimReleasedAfterFailure(t *testing.T) {
	sess, _, store, gate, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.RequestCommit())

	store.writeErr = errors.New("connection refused")
	err := sess.VerifyAndCommit(context.Background(), "letmein")
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)

	// The failed attempt must not leave the claim held.
	store.writeErr = nil
	require.NoError(t, sess.VerifyAndCommit(context.Background(), "letmein"))
	assert.Equal(t, 2, gate.calls)
	assert.True(t, store.stored("2024").Record["Dela Cruz"]["Jan"].Paid)
}

func TestCommitWrongPasswordRetainsChangeSet(t *testing.T) {
	sess, vm, store, gate, audits := newTestSession(t)
	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.RequestCommit())

	err := sess.VerifyAndCommit(context.Background(), "wrong")
	assert.ErrorIs(t, err, shared.ErrIncorrectPassword)
	assert.Equal(t, StatePendingCommit, sess.State())

	// Nothing persisted, local toggle still visible.
	assert.False(t, store.stored("2024").Record["Dela Cruz"]["Jan"].Paid)
	assert.Empty(t, audits.entries)
	assert.True(t, vm.Projection().Record["Dela Cruz"]["Jan"].Paid)

	// Retry with the right password works without redoing the edits.
	require.NoError(t, sess.VerifyAndCommit(context.Background(), "letmein"))
	assert.Equal(t, 2, gate.calls)
	assert.True(t, store.stored("2024").Record["Dela Cruz"]["Jan"].Paid)
}

func TestCommitStoreFailureKeepsPending(t *testing.T) {
	sess, _, store, _, audits := newTestSession(t)
	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.RequestCommit())

	store.writeErr = errors.New("connection refused")
	err := sess.VerifyAndCommit(context.Background(), "letmein")
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.Equal(t, StatePendingCommit, sess.State())
	assert.Empty(t, audits.entries)

	store.writeErr = nil
	require.NoError(t, sess.VerifyAndCommit(context.Background(), "letmein"))
	assert.Equal(t, StateViewing, sess.State())
}

func TestCommitPartialAuditFailure(t *testing.T) {
	sess, _, store, _, audits := newTestSession(t)
	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Feb"))
	require.NoError(t, sess.RequestCommit())

	audits.failAfter = 1
	err := sess.VerifyAndCommit(context.Background(), "letmein")
	assert.ErrorIs(t, err, shared.ErrPartialAuditFailure)

	// The ledger write is authoritative and the session closes anyway.
	assert.Equal(t, StateViewing, sess.State())
	assert.True(t, store.stored("2024").Record["Dela Cruz"]["Jan"].Paid)
	assert.Len(t, audits.entries, 1)
}

func TestAuditEntriesMatchSelectionStatuses(t *testing.T) {
	store := newFakeStore()
	doc := seedDocument()
	doc.Record["Dela Cruz"]["Feb"] = Slot{Paid: true, Amount: 450}
	store.seed(doc)

	vm := NewViewModel(store, nil)
	require.NoError(t, vm.LoadPeriod(context.Background(), "2024"))
	gate := &fakeGate{password: "letmein"}
	audits := &fakeAudits{failAfter: -1}
	sess := NewEditSession(vm, store, audits, gate, nil, "1", "Admin Reyes")

	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan")) // unpaid -> paid
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Feb")) // paid -> unpaid
	require.NoError(t, sess.RequestCommit())
	require.NoError(t, sess.VerifyAndCommit(context.Background(), "letmein"))

	require.Len(t, audits.entries, 2)
	byCell := map[string]audit.Status{}
	for _, e := range audits.entries {
		byCell[e.Slot] = e.Status
		assert.Equal(t, audits.entries[0].BatchID, e.BatchID)
	}
	assert.Equal(t, audit.StatusPaid, byCell["Jan"])
	assert.Equal(t, audit.StatusUnpaid, byCell["Feb"])
}

func TestCancelRestoresSnapshotAndStore(t *testing.T) {
	sess, vm, store, _, audits := newTestSession(t)
	before := vm.Projection()

	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.AdjustRate("Feb", 777))
	require.NoError(t, sess.Cancel(context.Background()))

	assert.Equal(t, StateViewing, sess.State())
	after := vm.Projection()
	assert.True(t, reflect.DeepEqual(before.Record, after.Record), "projection not restored")
	assert.True(t, reflect.DeepEqual(before.Rates, after.Rates), "rates not restored")

	// Store overwritten with the snapshot so store and view never diverge.
	stored := store.stored("2024")
	assert.False(t, stored.Record["Dela Cruz"]["Jan"].Paid)
	assert.Equal(t, 0.0, stored.Rates["Feb"])
	assert.Empty(t, audits.entries)
}

func TestCancelFromPendingCommit(t *testing.T) {
	sess, vm, _, _, _ := newTestSession(t)
	before := vm.Projection()

	require.NoError(t, sess.EnterEdit())
	require.NoError(t, sess.ToggleCell("Dela Cruz", "Jan"))
	require.NoError(t, sess.RequestCommit())
	require.NoError(t, sess.Cancel(context.Background()))

	assert.Equal(t, StateViewing, sess.State())
	assert.True(t, reflect.DeepEqual(before.Record, vm.Projection().Record))
}

func TestCancelOnlyFromEditingStates(t *testing.T) {
	sess, _, _, _, _ := newTestSession(t)
	assert.ErrorIs(t, sess.Cancel(context.Background()), shared.ErrEditState)
}

func TestVerifyAndCommitOnlyFromPendingCommit(t *testing.T) {
	sess, _, _, _, _ := newTestSession(t)
	require.NoError(t, sess.EnterEdit())
	err := sess.VerifyAndCommit(context.Background(), "letmein")
	assert.ErrorIs(t, err, shared.ErrEditState)
}
