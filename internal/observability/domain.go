package observability

import "time"

// RecordTransition counts a flight plan moving into status to.
func (c *OrchestratorCollector) RecordTransition(to string) {
	if c == nil || c.FlightPlanTransitions == nil {
		return
	}
	c.FlightPlanTransitions.WithLabelValues(to).Inc()
}

// SetConnectedStations updates the connected ground-station gauge.
func (c *OrchestratorCollector) SetConnectedStations(n int) {
	if c == nil || c.ConnectedStations == nil {
		return
	}
	c.ConnectedStations.Set(float64(n))
}

// RecordSend counts a gateway transmission attempt.
func (c *OrchestratorCollector) RecordSend(result string) {
	if c == nil || c.GatewaySends == nil {
		return
	}
	c.GatewaySends.WithLabelValues(result).Inc()
}

// ObserveSchedulerCycle records the duration of one scheduler cycle.
func (c *OrchestratorCollector) ObserveSchedulerCycle(d time.Duration) {
	if c == nil || c.SchedulerCycle == nil {
		return
	}
	c.SchedulerCycle.Observe(d.Seconds())
}

// RecordPlanOutcome counts a flight plan handled by the scheduler.
func (c *OrchestratorCollector) RecordPlanOutcome(outcome string) {
	if c == nil || c.SchedulerPlans == nil {
		return
	}
	c.SchedulerPlans.WithLabelValues(outcome).Inc()
}

// ObserveOverpassComputation records an overpass prediction duration.
func (c *OrchestratorCollector) ObserveOverpassComputation(d time.Duration) {
	if c == nil || c.OverpassComputation == nil {
		return
	}
	c.OverpassComputation.Observe(d.Seconds())
}

// ObserveImagingSearch records an imaging opportunity search duration.
func (c *OrchestratorCollector) ObserveImagingSearch(d time.Duration) {
	if c == nil || c.ImagingSearch == nil {
		return
	}
	c.ImagingSearch.Observe(d.Seconds())
}

// RecordTLERefresh counts an orbital element refresh attempt.
func (c *OrchestratorCollector) RecordTLERefresh(result string) {
	if c == nil || c.TLERefreshes == nil {
		return
	}
	c.TLERefreshes.WithLabelValues(result).Inc()
}
