package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

var base = time.Date(2025, 3, 4, 4, 30, 0, 0, time.UTC)

func newAppt(id, doctor string, startMin, endMin int) model.Appointment {
	return model.Appointment{
		ID:        id,
		ClinicID:  "clinic-1",
		DoctorID:  doctor,
		ServiceID: "svc-1",
		Date:      "2025-03-04",
		StartUTC:  base.Add(time.Duration(startMin) * time.Minute),
		EndUTC:    base.Add(time.Duration(endMin) * time.Minute),
		Status:    model.StatusConfirmed,
	}
}

func insert(t *testing.T, s *MemoryStore, appts ...model.Appointment) {
	t.Helper()
	err := s.InDoctorTx(context.Background(), appts[0].DoctorID, func(ctx context.Context, tx Tx) error {
		for _, a := range appts {
			if err := tx.Insert(ctx, a); err != nil {
				return err
			}
		}
		return tx.AppendEvent(ctx, outbox.Event{EventType: outbox.EventBooked, AggregateID: appts[0].ID})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestMemoryStoreCommitRejectsOverlap(t *testing.T) {
	s := NewMemoryStore(time.Second)
	insert(t, s, newAppt("a-1", "doc-1", 0, 30))

	err := s.InDoctorTx(context.Background(), "doc-1", func(ctx context.Context, tx Tx) error {
		return tx.Insert(ctx, newAppt("a-2", "doc-1", 15, 45))
	})
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
	if _, err := s.Get(context.Background(), "a-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected insert must not be visible, got %v", err)
	}

	// Touching is fine; another doctor is fine.
	insert(t, s, newAppt("a-3", "doc-1", 30, 45))
	insert(t, s, newAppt("b-1", "doc-2", 0, 30))
	if got := len(s.Events()); got != 3 {
		t.Fatalf("expected 3 committed events, got %d", got)
	}
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	s := NewMemoryStore(time.Second)
	boom := errors.New("boom")
	err := s.InDoctorTx(context.Background(), "doc-1", func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, newAppt("a-1", "doc-1", 0, 15)); err != nil {
			return err
		}
		_ = tx.AppendEvent(ctx, outbox.Event{EventType: outbox.EventBooked})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.Get(context.Background(), "a-1"); !errors.Is(err, ErrNotFound) {
		t.Fatal("insert leaked from failed transaction")
	}
	if len(s.Events()) != 0 {
		t.Fatal("event leaked from failed transaction")
	}
}

func TestMemoryStoreCancelThenRebookSameRange(t *testing.T) {
	s := NewMemoryStore(time.Second)
	insert(t, s, newAppt("a-1", "doc-1", 0, 30))

	err := s.InDoctorTx(context.Background(), "doc-1", func(ctx context.Context, tx Tx) error {
		if err := tx.SetStatus(ctx, "a-1", model.StatusCancelled, "rescheduled", base); err != nil {
			return err
		}
		overlapping, err := tx.Overlapping(ctx, "doc-1", base, base.Add(30*time.Minute), "")
		if err != nil {
			return err
		}
		if len(overlapping) != 0 {
			t.Errorf("cancelled appointment still overlapping: %+v", overlapping)
		}
		next := newAppt("a-2", "doc-1", 0, 30)
		next.RescheduledFrom = "a-1"
		return tx.Insert(ctx, next)
	})
	if err != nil {
		t.Fatalf("reschedule tx: %v", err)
	}
	old, _ := s.Get(context.Background(), "a-1")
	if old.Status != model.StatusCancelled || old.CancelReason != "rescheduled" || old.CancelledAt == nil {
		t.Fatalf("unexpected old appointment %+v", old)
	}
}

func TestMemoryStoreBusyWhileDoctorLocked(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InDoctorTx(context.Background(), "doc-1", func(context.Context, Tx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := s.InDoctorTx(context.Background(), "doc-1", func(context.Context, Tx) error { return nil })
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := s.InDoctorTx(context.Background(), "doc-2", func(context.Context, Tx) error { return nil }); err != nil {
		t.Fatalf("other doctor must not be blocked: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first tx: %v", err)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	s := NewMemoryStore(time.Second)
	a1 := newAppt("a-1", "doc-1", 60, 75)
	a2 := newAppt("a-2", "doc-1", 0, 15)
	a3 := newAppt("a-3", "doc-1", 24*60, 24*60+15)
	a3.Date = "2025-03-05"
	insert(t, s, a1, a2, a3)
	insert(t, s, newAppt("b-1", "doc-2", 0, 15))

	got, err := s.List(context.Background(), Filter{DoctorID: "doc-1", DateFrom: "2025-03-04", DateTo: "2025-03-04"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a-2" || got[1].ID != "a-1" {
		t.Fatalf("unexpected list %+v", got)
	}
	got, _ = s.List(context.Background(), Filter{ClinicID: "clinic-1", Limit: 1})
	if len(got) != 1 {
		t.Fatalf("limit not applied: %d", len(got))
	}
	onDate, _ := s.List(context.Background(), Filter{DoctorID: "doc-1", DateFrom: "2025-03-05", DateTo: "2025-03-05"})
	if len(onDate) != 1 || onDate[0].ID != "a-3" {
		t.Fatalf("unexpected date listing %+v", onDate)
	}
	active, _ := s.ListActive(context.Background(), "doc-1", base, base.Add(20*time.Minute))
	if len(active) != 1 || active[0].ID != "a-2" {
		t.Fatalf("unexpected range listing %+v", active)
	}
}

func TestMemoryStoreIdempotencyKeyIsUniquePerClinic(t *testing.T) {
	s := NewMemoryStore(time.Second)
	a := newAppt("a-1", "doc-1", 0, 15)
	a.IdempotencyKey = "key-1"
	insert(t, s, a)

	err := s.InDoctorTx(context.Background(), "doc-1", func(ctx context.Context, tx Tx) error {
		found, ok, err := tx.FindByIdempotencyKey(ctx, "clinic-1", "key-1")
		if err != nil || !ok || found.ID != "a-1" {
			t.Errorf("lookup: %+v ok=%v err=%v", found, ok, err)
		}
		b := newAppt("a-2", "doc-1", 60, 75)
		b.IdempotencyKey = "key-1"
		return tx.Insert(ctx, b)
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
