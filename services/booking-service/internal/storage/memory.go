package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/lock"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

// MemoryStore keeps appointments in process. It enforces the same
// non-overlap rule as the Postgres exclusion constraint at commit.
type MemoryStore struct {
	mu     sync.RWMutex
	appts  map[string]model.Appointment
	order  []string
	events []outbox.Event

	locks    *lock.Keyed
	lockWait time.Duration
}

func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	if lockWait <= 0 {
		lockWait = 2 * time.Second
	}
	return &MemoryStore{
		appts:    map[string]model.Appointment{},
		locks:    lock.NewKeyed(),
		lockWait: lockWait,
	}
}

// Events returns a copy of every committed event, oldest first.
func (s *MemoryStore) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *MemoryStore) ListActive(_ context.Context, doctorID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, id := range s.order {
		a := s.appts[id]
		if a.DoctorID == doctorID && a.Status.Active() && blockedOverlaps(a, from, to) {
			out = append(out, a)
		}
	}
	sortByBlockStart(out)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, id := range s.order {
		a := s.appts[id]
		switch {
		case f.ClinicID != "" && a.ClinicID != f.ClinicID,
			f.DoctorID != "" && a.DoctorID != f.DoctorID,
			f.Status != "" && a.Status != f.Status,
			f.DateFrom != "" && a.Date < f.DateFrom,
			f.DateTo != "" && a.Date > f.DateTo:
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	if limit := f.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InDoctorTx(ctx context.Context, doctorID string, fn func(ctx context.Context, tx Tx) error) error {
	release, err := s.locks.Acquire(ctx, doctorID, s.lockWait)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return ErrBusy
		}
		return err
	}
	defer release()

	tx := &memTx{s: s, staged: map[string]model.Appointment{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]model.Appointment, len(s.appts)+len(tx.staged))
	for id, a := range s.appts {
		merged[id] = a
	}
	for id, a := range tx.staged {
		merged[id] = a
	}
	for id := range tx.staged {
		a := merged[id]
		if !a.Status.Active() {
			continue
		}
		start, end := a.Blocked()
		for otherID, other := range merged {
			if otherID != id && other.DoctorID == a.DoctorID && other.Status.Active() && blockedOverlaps(other, start, end) {
				return ErrOverlap
			}
		}
	}

	for id, a := range tx.staged {
		s.appts[id] = a
	}
	s.order = append(s.order, tx.inserted...)
	s.events = append(s.events, tx.events...)
	return nil
}

type memTx struct {
	s        *MemoryStore
	staged   map[string]model.Appointment
	inserted []string
	events   []outbox.Event
}

func (tx *memTx) view(id string) (model.Appointment, bool) {
	if a, ok := tx.staged[id]; ok {
		return a, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	a, ok := tx.s.appts[id]
	return a, ok
}

func (tx *memTx) snapshot() []model.Appointment {
	tx.s.mu.RLock()
	out := make([]model.Appointment, 0, len(tx.s.appts)+len(tx.inserted))
	for _, id := range tx.s.order {
		if _, staged := tx.staged[id]; !staged {
			out = append(out, tx.s.appts[id])
		}
	}
	tx.s.mu.RUnlock()
	for _, a := range tx.staged {
		out = append(out, a)
	}
	return out
}

func (tx *memTx) Overlapping(_ context.Context, doctorID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range tx.snapshot() {
		if a.ID != excludeID && a.DoctorID == doctorID && a.Status.Active() && blockedOverlaps(a, start, end) {
			out = append(out, a)
		}
	}
	sortByBlockStart(out)
	return out, nil
}

func (tx *memTx) GetForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := tx.view(id)
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (tx *memTx) FindByIdempotencyKey(_ context.Context, clinicID, key string) (model.Appointment, bool, error) {
	if key == "" {
		return model.Appointment{}, false, nil
	}
	for _, a := range tx.snapshot() {
		if a.ClinicID == clinicID && a.IdempotencyKey == key {
			return a, true, nil
		}
	}
	return model.Appointment{}, false, nil
}

func (tx *memTx) Insert(ctx context.Context, a model.Appointment) error {
	if _, exists := tx.view(a.ID); exists {
		return ErrDuplicate
	}
	if _, dup, _ := tx.FindByIdempotencyKey(ctx, a.ClinicID, a.IdempotencyKey); dup {
		return ErrDuplicate
	}
	tx.staged[a.ID] = a
	tx.inserted = append(tx.inserted, a.ID)
	return nil
}

func (tx *memTx) SetStatus(_ context.Context, id string, status model.Status, reason string, at time.Time) error {
	a, ok := tx.view(id)
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	if status == model.StatusCancelled {
		a.CancelReason = reason
		cancelledAt := at
		a.CancelledAt = &cancelledAt
	}
	tx.staged[id] = a
	return nil
}

func (tx *memTx) AppendEvent(_ context.Context, evt outbox.Event) error {
	tx.events = append(tx.events, evt)
	return nil
}

func blockedOverlaps(a model.Appointment, from, to time.Time) bool {
	start, end := a.Blocked()
	return start.Before(to) && from.Before(end)
}

// sortByBlockStart orders by blocked start, then id.
func sortByBlockStart(appts []model.Appointment) {
	slices.SortStableFunc(appts, func(a, b model.Appointment) int {
		as, _ := a.Blocked()
		bs, _ := b.Blocked()
		if c := as.Compare(bs); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortByStart(appts []model.Appointment) {
	slices.SortStableFunc(appts, func(a, b model.Appointment) int {
		if c := a.StartUTC.Compare(b.StartUTC); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
