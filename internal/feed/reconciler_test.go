package feed

import (
	"testing"
	"time"

	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func order(id int64, status models.OrderStatus) models.Order {
	return models.Order{
		ID:           id,
		CustomerName: "Customer",
		Status:       status,
		CreatedAt:    time.Unix(1700000000+id, 0),
	}
}

func TestApplyPushDeduplicatesByID(t *testing.T) {
	r := NewReconciler(testLogger())
	r.ApplySnapshot([]models.Order{order(1, models.StatusPending)})

	// Repeated pushes for the same id must collapse to one entry holding
	// the last-applied value.
	r.ApplyPush(order(1, models.StatusPending))
	r.ApplyPush(order(1, models.StatusViewed))
	r.ApplyPush(order(1, models.StatusReady))

	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	got, ok := r.Get(1)
	if !ok {
		t.Fatal("order 1 missing")
	}
	if got.Status != models.StatusReady {
		t.Errorf("expected last-applied status ready, got %s", got.Status)
	}
}

func TestSnapshotLastWriteWins(t *testing.T) {
	r := NewReconciler(testLogger())
	r.ApplySnapshot([]models.Order{
		order(1, models.StatusPending),
		order(1, models.StatusReady),
	})

	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	got, _ := r.Get(1)
	if got.Status != models.StatusReady {
		t.Errorf("expected last snapshot value to win, got %s", got.Status)
	}
}

func TestTerminalPushRemoves(t *testing.T) {
	for _, status := range []models.OrderStatus{models.StatusDelivered, models.StatusCanceled} {
		t.Run(string(status), func(t *testing.T) {
			r := NewReconciler(testLogger())
			r.ApplySnapshot([]models.Order{order(7, models.StatusReady)})

			result := r.ApplyPush(order(7, status))
			if !result.Removed {
				t.Error("expected terminal push to report removal")
			}
			if result.New {
				t.Error("terminal push must not count as new")
			}
			if _, ok := r.Get(7); ok {
				t.Error("order should be gone from working set")
			}

			// Terminal removal is sticky against a duplicate terminal push
			// but holds no memory: a later non-terminal push re-inserts the
			// id as a brand new entry.
			if res := r.ApplyPush(order(7, status)); res.Removed || res.New || res.Updated {
				t.Errorf("duplicate terminal push should be a no-op, got %+v", res)
			}
			res := r.ApplyPush(order(7, models.StatusPending))
			if !res.New {
				t.Error("re-insert after terminal removal should be new")
			}
			if _, ok := r.Get(7); !ok {
				t.Error("order should be back in working set")
			}
		})
	}
}

func TestTerminalPushForUnknownIDIsNoOp(t *testing.T) {
	r := NewReconciler(testLogger())

	result := r.ApplyPush(order(42, models.StatusDelivered))
	if result.New || result.Updated || result.Removed {
		t.Errorf("terminal push for unknown id should do nothing, got %+v", result)
	}
	if r.Len() != 0 {
		t.Errorf("working set should stay empty, got %d", r.Len())
	}
}

func TestListNeverContainsTerminalStatuses(t *testing.T) {
	r := NewReconciler(testLogger())
	// A stale snapshot may contain finished orders; they must never render.
	r.ApplySnapshot([]models.Order{
		order(1, models.StatusPending),
		order(2, models.StatusDelivered),
		order(3, models.StatusCanceled),
		order(4, models.StatusReady),
	})

	rows, total := r.List(ListQuery{}, nil)
	if total != 2 {
		t.Fatalf("expected 2 visible orders, got %d", total)
	}
	for _, row := range rows {
		if row.Status.Terminal() {
			t.Errorf("terminal order %d visible in list", row.ID)
		}
	}
}

func TestPushThenTransitionScenario(t *testing.T) {
	r := NewReconciler(testLogger())
	r.ApplySnapshot([]models.Order{
		order(1, models.StatusPending),
		order(2, models.StatusReady),
	})

	if res := r.ApplyPush(order(1, models.StatusViewed)); res.New || !res.Updated {
		t.Errorf("push for known id 1 must report an update, got %+v", res)
	}
	got, _ := r.Get(1)
	if got.Status != models.StatusViewed {
		t.Errorf("expected id 1 viewed, got %s", got.Status)
	}

	if res := r.ApplyPush(order(3, models.StatusPending)); !res.New {
		t.Error("push for unseen id 3 must be new")
	}

	// Confirmed delivered transition removes id 2 locally.
	if !r.Remove(2) {
		t.Error("expected id 2 removed")
	}

	want := map[int64]models.OrderStatus{
		1: models.StatusViewed,
		3: models.StatusPending,
	}
	if r.Len() != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), r.Len())
	}
	for id, status := range want {
		got, ok := r.Get(id)
		if !ok {
			t.Errorf("id %d missing", id)
			continue
		}
		if got.Status != status {
			t.Errorf("id %d: expected %s, got %s", id, status, got.Status)
		}
	}
}

func TestSetStatusInPlace(t *testing.T) {
	r := NewReconciler(testLogger())
	r.ApplySnapshot([]models.Order{order(5, models.StatusPending)})

	if !r.SetStatus(5, models.StatusViewed) {
		t.Fatal("expected update to succeed")
	}
	got, _ := r.Get(5)
	if got.Status != models.StatusViewed {
		t.Errorf("expected viewed, got %s", got.Status)
	}

	if r.SetStatus(99, models.StatusViewed) {
		t.Error("update for unknown id should report false")
	}
}
