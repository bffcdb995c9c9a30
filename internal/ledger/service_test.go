package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoaboard/hoaboard/internal/shared"
)

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	store.seed(seedDocument())
	gate := &fakeGate{password: "letmein"}
	audits := &fakeAudits{failAfter: -1}
	return NewService(store, audits, gate, nil), store
}

func TestAddMemberInitializesAllSlots(t *testing.T) {
	svc, store := newTestService(t)

	require.NoError(t, svc.AddMember(context.Background(), "2024", "Santos"))

	row := store.stored("2024").Record["Santos"]
	require.Len(t, row, 13)
	for _, name := range SlotNames {
		assert.Equal(t, Slot{}, row[name])
	}
}

func TestAddMemberRejectsDuplicate(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AddMember(context.Background(), "2024", "Dela Cruz")
	assert.ErrorIs(t, err, shared.ErrDuplicateMember)
}

func TestAddMemberCreatesPeriodOnFirstUse(t *testing.T) {
	svc, store := newTestService(t)

	require.NoError(t, svc.AddMember(context.Background(), "2030", "Santos"))
	doc := store.stored("2030")
	require.NotNil(t, doc)
	assert.Contains(t, doc.Record, "Santos")
}

func TestRemoveMemberIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	writesBefore := store.writes

	require.NoError(t, svc.RemoveMember(context.Background(), "2024", "Dela Cruz"))
	assert.NotContains(t, store.stored("2024").Record, "Dela Cruz")
	assert.Equal(t, writesBefore+1, store.writes)

	// Second removal is a no-op and does not touch the store.
	require.NoError(t, svc.RemoveMember(context.Background(), "2024", "Dela Cruz"))
	assert.Equal(t, writesBefore+1, store.writes)

	// Removing from an unknown period is also a no-op.
	require.NoError(t, svc.RemoveMember(context.Background(), "1999", "Dela Cruz"))
}

func TestOpenSessionLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	sess, err := svc.OpenSession(context.Background(), "sess-1", "2024", "1", "Admin Reyes")
	require.NoError(t, err)
	assert.Equal(t, StateEditing, sess.State())

	// A second open on the same login session is rejected while editing.
	_, err = svc.OpenSession(context.Background(), "sess-1", "2024", "1", "Admin Reyes")
	assert.ErrorIs(t, err, shared.ErrEditState)

	// A different login session cannot edit the same period concurrently.
	_, err = svc.OpenSession(context.Background(), "sess-2", "2024", "2", "Admin Cruz")
	assert.ErrorIs(t, err, shared.ErrEditState)

	require.NoError(t, sess.Cancel(context.Background()))
	svc.CloseSession("sess-1")
	_, err = svc.Session("sess-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// After the first session ends, another admin can edit.
	_, err = svc.OpenSession(context.Background(), "sess-2", "2024", "2", "Admin Cruz")
	require.NoError(t, err)
}

func TestEnsurePeriod(t *testing.T) {
	svc, store := newTestService(t)

	require.NoError(t, svc.EnsurePeriod(context.Background(), "2031"))
	doc := store.stored("2031")
	require.NotNil(t, doc)
	assert.Empty(t, doc.Record)

	// Idempotent: an existing period is left untouched.
	writes := store.writes
	require.NoError(t, svc.EnsurePeriod(context.Background(), "2031"))
	assert.Equal(t, writes, store.writes)
}
