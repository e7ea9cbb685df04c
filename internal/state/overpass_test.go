package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

func window(startOffset time.Duration) *model.Overpass {
	return &model.Overpass{
		SatelliteID:      "sat-1",
		GroundStationID:  "gs-1",
		StartTime:        base.Add(startOffset),
		EndTime:          base.Add(startOffset + 8*time.Minute),
		MaxElevationTime: base.Add(startOffset + 4*time.Minute),
		MaxElevationDeg:  45,
		DurationSeconds:  480,
	}
}

func TestFindOrCreateOverpassIsIdempotent(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	first, created, err := s.FindOrCreateOverpass(ctx, window(0), 10*time.Minute)
	if err != nil || !created {
		t.Fatalf("first FindOrCreateOverpass = %v, created=%v", err, created)
	}
	second, created, err := s.FindOrCreateOverpass(ctx, window(time.Minute), 10*time.Minute)
	if err != nil || created {
		t.Fatalf("second FindOrCreateOverpass = %v, created=%v", err, created)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same overpass, got %s and %s", first.ID, second.ID)
	}

	other, created, _ := s.FindOrCreateOverpass(ctx, window(90*time.Minute), 10*time.Minute)
	if !created || other.ID == first.ID {
		t.Fatalf("a distant window should create a new overpass")
	}
}

func TestFindOrCreateOverpassConcurrent(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	ids := make([]string, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, _, err := s.FindOrCreateOverpass(ctx, window(0), 10*time.Minute)
			if err == nil {
				ids[i] = o.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent find-or-create produced distinct ids %v", ids)
		}
	}
}

func storedOverpass(t *testing.T, s *Store, id string) *model.Overpass {
	t.Helper()
	list, err := s.ListOverpasses(context.Background(), "sat-1", "gs-1", base.Add(-24*time.Hour), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListOverpasses: %v", err)
	}
	for _, o := range list {
		if o.ID == id {
			return o
		}
	}
	t.Fatalf("overpass %s not stored", id)
	return nil
}

func mustOverpass(t *testing.T, s *Store, o *model.Overpass) *model.Overpass {
	t.Helper()
	stored, created, err := s.FindOrCreateOverpass(context.Background(), o, 10*time.Minute)
	if err != nil || !created {
		t.Fatalf("FindOrCreateOverpass = %v, created=%v", err, created)
	}
	return stored
}

func TestFindAndListOverpasses(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	a := mustOverpass(t, s, window(0))
	b := mustOverpass(t, s, window(3*time.Hour))

	found, created, err := s.FindOrCreateOverpass(ctx, window(5*time.Minute), 10*time.Minute)
	if err != nil || created || found.ID != a.ID {
		t.Fatalf("FindOrCreateOverpass near a = %+v, created=%v, %v", found, created, err)
	}
	other := window(0)
	other.GroundStationID = "gs-2"
	if _, created, err := s.FindOrCreateOverpass(ctx, other, 10*time.Minute); err != nil || !created {
		t.Fatalf("another station should get its own overpass, created=%v, %v", created, err)
	}

	list, err := s.ListOverpasses(ctx, "sat-1", "gs-1", base.Add(-time.Hour), base.Add(4*time.Hour))
	if err != nil || len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("ListOverpasses = %+v, %v", list, err)
	}
	if list, _ := s.ListOverpasses(ctx, "sat-1", "gs-1", base.Add(time.Hour), base.Add(2*time.Hour)); len(list) != 0 {
		t.Fatalf("expected no overpasses in gap, got %d", len(list))
	}
}

func TestAssignOverpassUniqueness(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	planA, _ := s.CreatePlan(ctx, &model.FlightPlan{Name: "A", Status: model.StatusApproved})
	planB, _ := s.CreatePlan(ctx, &model.FlightPlan{Name: "B", Status: model.StatusApproved})
	op1 := mustOverpass(t, s, window(0))
	op2 := mustOverpass(t, s, window(2*time.Hour))

	assigned, err := s.AssignOverpass(ctx, op1.ID, planA.ID, func(p *model.FlightPlan) error {
		p.Status = model.StatusAssignedToOverpass
		p.OverpassID = model.StringPtr(op1.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("AssignOverpass: %v", err)
	}
	if assigned.Status != model.StatusAssignedToOverpass || *assigned.OverpassID != op1.ID {
		t.Fatalf("unexpected assigned plan %+v", assigned)
	}

	if _, err := s.AssignOverpass(ctx, op1.ID, planA.ID, nil); err != nil {
		t.Fatalf("relinking the same pair should be a no-op, got %v", err)
	}
	if _, err := s.AssignOverpass(ctx, op1.ID, planB.ID, nil); !errors.Is(err, ErrOverpassAlreadyLinked) {
		t.Fatalf("second plan on same overpass err = %v", err)
	}
	if _, err := s.AssignOverpass(ctx, op2.ID, planA.ID, nil); !errors.Is(err, ErrOverpassAlreadyLinked) {
		t.Fatalf("second overpass for same plan err = %v", err)
	}
	if _, err := s.AssignOverpass(ctx, "missing", planB.ID, nil); !errors.Is(err, ErrOverpassNotFound) {
		t.Fatalf("unknown overpass err = %v", err)
	}

	linked := storedOverpass(t, s, op1.ID)
	if linked.FlightPlanID == nil || *linked.FlightPlanID != planA.ID {
		t.Fatalf("overpass link = %v, want %s", linked.FlightPlanID, planA.ID)
	}
	if free := storedOverpass(t, s, op2.ID); free.FlightPlanID != nil {
		t.Fatalf("unassigned overpass linked to %s", *free.FlightPlanID)
	}
}

func TestAssignOverpassRollsBackOnError(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	plan, _ := s.CreatePlan(ctx, &model.FlightPlan{Name: "A", Status: model.StatusApproved})
	op := mustOverpass(t, s, window(0))

	boom := errors.New("boom")
	if _, err := s.AssignOverpass(ctx, op.ID, plan.ID, func(*model.FlightPlan) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("AssignOverpass err = %v, want boom", err)
	}
	if got := storedOverpass(t, s, op.ID); got.FlightPlanID != nil {
		t.Fatalf("failed assignment left a link to %s", *got.FlightPlanID)
	}
}

func TestReleaseOverpassFreesThePass(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	planA, _ := s.CreatePlan(ctx, &model.FlightPlan{Name: "A", Status: model.StatusApproved})
	planB, _ := s.CreatePlan(ctx, &model.FlightPlan{Name: "B", Status: model.StatusApproved})
	op := mustOverpass(t, s, window(0))

	if _, err := s.AssignOverpass(ctx, op.ID, planA.ID, nil); err != nil {
		t.Fatalf("AssignOverpass: %v", err)
	}
	if !s.ReleaseOverpass(ctx, planA.ID) {
		t.Fatalf("expected an existing link to be released")
	}
	if s.ReleaseOverpass(ctx, planA.ID) {
		t.Fatalf("second release should report no link")
	}
	if _, err := s.AssignOverpass(ctx, op.ID, planB.ID, nil); err != nil {
		t.Fatalf("released overpass should be linkable, got %v", err)
	}
}
