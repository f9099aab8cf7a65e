// Package signuptest provides an in-memory signup.Repository and a
// contract suite that every storage backend runs against.
package signuptest

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/signup"
)

type entry struct {
	rec       domain.Signup
	committed bool
}

// MemoryRepo is a signup.Repository backed by a map keyed by email key.
// Failure hooks let tests simulate an unavailable store.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*entry

	ReserveErr error
	CommitErr  error
	ReadErr    error

	Released int
}

// NewMemoryRepo returns an empty repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*entry)}
}

func (m *MemoryRepo) Reserve(_ context.Context, s *domain.Signup) (signup.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReserveErr != nil {
		return nil, m.ReserveErr
	}
	if _, exists := m.store[s.EmailKey]; exists {
		return nil, signup.ErrAlreadyExists
	}
	m.store[s.EmailKey] = &entry{rec: *s}
	return &memoryReservation{repo: m, key: s.EmailKey, id: s.ID}, nil
}

func (m *MemoryRepo) Count(_ context.Context, f signup.CountFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	n := 0
	for _, e := range m.store {
		if e.committed && (f.Role == "" || e.rec.Role == f.Role) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepo) All(_ context.Context) iter.Seq2[domain.Signup, error] {
	return func(yield func(domain.Signup, error) bool) {
		m.mu.RLock()
		if m.ReadErr != nil {
			err := m.ReadErr
			m.mu.RUnlock()
			yield(domain.Signup{}, err)
			return
		}
		var recs []domain.Signup
		for _, e := range m.store {
			if e.committed {
				recs = append(recs, e.rec)
			}
		}
		m.mu.RUnlock()

		sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Pending returns the number of reservations not yet committed.
func (m *MemoryRepo) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.store {
		if !e.committed {
			n++
		}
	}
	return n
}

type memoryReservation struct {
	repo *MemoryRepo
	key  string
	id   string
}

func (r *memoryReservation) Commit(ctx context.Context, st domain.SyncState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	if r.repo.CommitErr != nil {
		return r.repo.CommitErr
	}
	e, ok := r.repo.store[r.key]
	if !ok || e.rec.ID != r.id {
		return signup.ErrReservationLost
	}
	e.rec.Sync = st
	e.committed = true
	return nil
}

func (r *memoryReservation) Release(context.Context) error {
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	r.repo.Released++
	if e, ok := r.repo.store[r.key]; ok && !e.committed && e.rec.ID == r.id {
		delete(r.repo.store, r.key)
	}
	return nil
}
