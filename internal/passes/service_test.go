package passes

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/fixtures"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

type fakeLister struct {
	overpasses []*model.Overpass
}

func (f fakeLister) ListOverpasses(context.Context, string, string, time.Time, time.Time) ([]*model.Overpass, error) {
	return f.overpasses, nil
}

func TestMergeReplacesMatchingPredictions(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	predicted := []Window{
		{StartTime: base, EndTime: base.Add(8 * time.Minute)},
		{StartTime: base.Add(90 * time.Minute), EndTime: base.Add(98 * time.Minute)},
	}
	planID := "fp-1"
	stored := []*model.Overpass{
		{ID: "op-1", StartTime: base.Add(2 * time.Minute), EndTime: base.Add(9 * time.Minute), FlightPlanID: &planID},
		{ID: "op-old", StartTime: base.Add(-3 * time.Hour), EndTime: base.Add(-170 * time.Minute)},
	}

	merged := Merge(predicted, stored, MatchTolerance)
	if len(merged) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(merged))
	}
	if merged[0].OverpassID != "op-old" {
		t.Fatalf("unmatched stored overpass should sort first, got %+v", merged[0])
	}
	if merged[1].OverpassID != "op-1" || merged[1].FlightPlanID == nil || *merged[1].FlightPlanID != "fp-1" {
		t.Fatalf("matching prediction should carry the stored record, got %+v", merged[1])
	}
	if merged[2].OverpassID != "" {
		t.Fatalf("unmatched prediction should stay unsaved, got %+v", merged[2])
	}
}

func TestMatchesTolerance(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	o := &model.Overpass{StartTime: base, EndTime: base.Add(10 * time.Minute)}
	if !Matches(base.Add(10*time.Minute), base.Add(20*time.Minute), o, MatchTolerance) {
		t.Fatalf("10 minute offset should match")
	}
	if Matches(base.Add(11*time.Minute), base.Add(10*time.Minute), o, MatchTolerance) {
		t.Fatalf("11 minute start offset should not match")
	}
}

func TestListWithStored(t *testing.T) {
	predictor := NewPredictor(fixtures.NewCatalog())
	req := dayRequest()
	predicted, err := predictor.ComputeOverpasses(context.Background(), req)
	if err != nil {
		t.Fatalf("ComputeOverpasses: %v", err)
	}

	stored := predicted[0].Overpass(fixtures.SatelliteID, fixtures.LondonStationID)
	stored.ID = "op-stored"
	svc := NewService(predictor, fakeLister{overpasses: []*model.Overpass{stored}})

	got, err := svc.ListWithStored(context.Background(), req)
	if err != nil {
		t.Fatalf("ListWithStored: %v", err)
	}
	if len(got) != len(predicted) {
		t.Fatalf("merged %d windows, want %d", len(got), len(predicted))
	}
	if got[0].OverpassID != "op-stored" {
		t.Fatalf("first window should be the stored overpass, got %+v", got[0])
	}

	req.MaxResults = 1
	if got, _ := svc.ListWithStored(context.Background(), req); len(got) != 1 {
		t.Fatalf("MaxResults not applied after merge, got %d", len(got))
	}
}
