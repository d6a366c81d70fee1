package metrics_test

import (
	"testing"

	"github.com/batsimgo/core/metrics"
	"github.com/batsimgo/core/server"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeStatsSource struct{ stats server.Stats }

func (f fakeStatsSource) Stats() server.Stats { return f.stats }

type fakeEnergySource struct{ joules float64 }

func (f fakeEnergySource) TotalConsumedEnergy() float64 { return f.joules }

// gaugeValue pulls one un-labeled gauge or counter's current value out of a
// freshly-gathered registry by metric name.
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
	}
	t.Fatalf("metric %q was not registered", name)
	return 0
}

func TestRefreshSetsGaugesFromStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := fakeStatsSource{stats: server.Stats{
		NbRunningJobs:        2,
		NbSwitchingMachines:  1,
		NbWaiters:            3,
		NbKillers:            1,
		NbSubmitters:         4,
		NbSubmittersFinished: 2,
		NbRejectedJobs:       5,
	}}
	c := metrics.New(reg, src, nil)
	c.Refresh()

	cases := map[string]float64{
		"batsimgo_running_jobs":        2,
		"batsimgo_switching_machines":  1,
		"batsimgo_waiters":             3,
		"batsimgo_killers":             1,
		"batsimgo_submitters":          4,
		"batsimgo_submitters_finished": 2,
		"batsimgo_rejected_jobs":       5,
	}
	for name, want := range cases {
		if got := gaugeValue(t, reg, name); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestRefreshWithEnergySourceUpdatesEnergyGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg, fakeStatsSource{}, fakeEnergySource{joules: 123})
	c.Refresh()

	if got := gaugeValue(t, reg, "batsimgo_energy_consumed_joules"); got != 123 {
		t.Fatalf("batsimgo_energy_consumed_joules = %v, want 123", got)
	}
}

func TestRefreshWithoutEnergySourceLeavesEnergyGaugeAtZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg, fakeStatsSource{}, nil)
	c.Refresh()

	if got := gaugeValue(t, reg, "batsimgo_energy_consumed_joules"); got != 0 {
		t.Fatalf("batsimgo_energy_consumed_joules = %v, want 0 with no EnergySource", got)
	}
}

func TestSetEnergyConsumedUpdatesGaugeDirectlyWithoutRefresh(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg, fakeStatsSource{}, nil)
	c.SetEnergyConsumed(99)

	if got := gaugeValue(t, reg, "batsimgo_energy_consumed_joules"); got != 99 {
		t.Fatalf("batsimgo_energy_consumed_joules = %v, want 99", got)
	}
}

func TestRecordJobCompletionIncrementsByState(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg, fakeStatsSource{}, nil)

	c.RecordJobCompletion("COMPLETED_SUCCESSFULLY")
	c.RecordJobCompletion("COMPLETED_SUCCESSFULLY")
	c.RecordJobCompletion("COMPLETED_KILLED")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "batsimgo_jobs_completed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "state" {
					got[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	if got["COMPLETED_SUCCESSFULLY"] != 2 || got["COMPLETED_KILLED"] != 1 {
		t.Fatalf("per-state counts = %+v, want {COMPLETED_SUCCESSFULLY:2, COMPLETED_KILLED:1}", got)
	}
}
