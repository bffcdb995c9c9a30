package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hoaboard/hoaboard/internal/shared"
)

// Service owns the per-period view models and the per-administrator edit
// sessions, and carries the member flows that live outside any edit session.
type Service struct {
	store  Store
	audits AuditAppender
	gate   Gate
	logger *slog.Logger

	mu       sync.Mutex
	views    map[string]*ViewModel
	sessions map[string]*EditSession
}

// NewService constructs a Service.
func NewService(store Store, audits AuditAppender, gate Gate, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		audits:   audits,
		gate:     gate,
		logger:   logger,
		views:    make(map[string]*ViewModel),
		sessions: make(map[string]*EditSession),
	}
}

// View returns the hydrated view model for a period, loading it on first use.
func (s *Service) View(ctx context.Context, period string) (*ViewModel, error) {
	if period == "" {
		return nil, errors.New("ledger: period required")
	}
	s.mu.Lock()
	vm, ok := s.views[period]
	if !ok {
		vm = NewViewModel(s.store, s.logger)
		s.views[period] = vm
	}
	s.mu.Unlock()

	if vm.Period() == "" {
		if err := vm.LoadPeriod(ctx, period); err != nil {
			return nil, err
		}
	}
	return vm, nil
}

// Session returns the edit session bound to an administrator's login session
// key, or shared.ErrNotFound when none is open.
func (s *Service) Session(key string) (*EditSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: no edit session", shared.ErrNotFound)
	}
	return sess, nil
}

// OpenSession creates an edit session for the administrator on a period and
// enters edit mode. One session per login session key; a leftover session in
// the Viewing state is replaced.
func (s *Service) OpenSession(ctx context.Context, key, period, adminID, adminName string) (*EditSession, error) {
	vm, err := s.View(ctx, period)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok && existing.State() != StateViewing {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: edit session already open", shared.ErrEditState)
	}
	sess := NewEditSession(vm, s.store, s.audits, s.gate, s.logger, adminID, adminName)
	s.sessions[key] = sess
	s.mu.Unlock()

	if err := sess.EnterEdit(); err != nil {
		s.mu.Lock()
		delete(s.sessions, key)
		s.mu.Unlock()
		return nil, err
	}
	return sess, nil
}

// CloseSession drops a session that has returned to the Viewing state.
func (s *Service) CloseSession(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok && sess.State() == StateViewing {
		delete(s.sessions, key)
	}
}

// AddMember creates a member row in a period with all thirteen slots unpaid.
// Runs outside any edit session. A duplicate name is rejected.
func (s *Service) AddMember(ctx context.Context, period, name string) error {
	if name == "" {
		return errors.New("ledger: member name required")
	}
	doc, err := s.readOrCreate(ctx, period)
	if err != nil {
		return err
	}
	if _, ok := doc.Record[name]; ok {
		return fmt.Errorf("%w: %s in %s", shared.ErrDuplicateMember, name, period)
	}
	doc.Record[name] = NewMemberRow()
	if err := s.writeAndRefresh(ctx, doc); err != nil {
		return err
	}
	return nil
}

// RemoveMember deletes a whole member row from a period. Idempotent: removing
// an absent member is a no-op.
func (s *Service) RemoveMember(ctx context.Context, period, name string) error {
	doc, err := s.store.ReadPeriod(ctx, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: read period %s: %v", shared.ErrStoreUnavailable, period, err)
	}
	if _, ok := doc.Record[name]; !ok {
		return nil
	}
	delete(doc.Record, name)
	return s.writeAndRefresh(ctx, doc)
}

// EnsurePeriod creates an empty document with zero rates on first use.
func (s *Service) EnsurePeriod(ctx context.Context, period string) error {
	_, err := s.store.ReadPeriod(ctx, period)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: read period %s: %v", shared.ErrStoreUnavailable, period, err)
	}
	return s.writeAndRefresh(ctx, NewDocument(period))
}

// ListPeriods returns known period keys, newest first.
func (s *Service) ListPeriods(ctx context.Context) ([]string, error) {
	periods, err := s.store.ListPeriods(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list periods: %v", shared.ErrStoreUnavailable, err)
	}
	return periods, nil
}

func (s *Service) readOrCreate(ctx context.Context, period string) (*Document, error) {
	doc, err := s.store.ReadPeriod(ctx, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return NewDocument(period), nil
		}
		return nil, fmt.Errorf("%w: read period %s: %v", shared.ErrStoreUnavailable, period, err)
	}
	return doc, nil
}

func (s *Service) writeAndRefresh(ctx context.Context, doc *Document) error {
	if err := s.store.WritePeriod(ctx, doc); err != nil {
		return fmt.Errorf("%w: write period %s: %v", shared.ErrStoreUnavailable, doc.Period, err)
	}
	// Keep the in-process projection current even when the subscription
	// feed lags; a refresh failure will be corrected by the next change
	// notification. An active edit session owns the projection, so its
	// local edits are never overwritten here.
	s.mu.Lock()
	vm, ok := s.views[doc.Period]
	s.mu.Unlock()
	if ok && !vm.Editing() {
		if err := vm.LoadPeriod(ctx, doc.Period); err != nil && s.logger != nil {
			s.logger.Warn("refresh after write", slog.String("period", doc.Period), slog.Any("error", err))
		}
	}
	return nil
}
