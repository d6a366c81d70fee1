// Package metrics exposes the Server's counters as Prometheus gauges
// (spec.md §1 lists telemetry sinks as an external collaborator concern;
// this is this repository's default one), following the
// promauto/promhttp pattern used in Chapter13/prom_http.
package metrics

import (
	"github.com/batsimgo/core/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StatsSource is the slice of *server.Server these collectors read.
type StatsSource interface {
	Stats() server.Stats
}

// EnergySource supplies the platform-wide cumulative energy figure; passing
// one to New lets Refresh keep batsimgo_energy_consumed_joules current on a
// tick instead of only when a SCHED_TELL_ME_ENERGY round-trips.
type EnergySource interface {
	TotalConsumedEnergy() float64
}

// Collectors are the gauges this package registers; call Refresh after every
// batch of dispatches, or on a ticker, to refresh them from src.
type Collectors struct {
	src    StatsSource
	energy EnergySource

	nbRunningJobs       prometheus.Gauge
	nbSwitchingMachines prometheus.Gauge
	nbWaiters           prometheus.Gauge
	nbKillers           prometheus.Gauge
	nbSubmitters        prometheus.Gauge
	nbSubmittersDone    prometheus.Gauge
	nbRejectedJobs      prometheus.Gauge

	jobsCompleted  *prometheus.CounterVec
	energyConsumed prometheus.Gauge
}

// New registers the core's gauges against reg and returns a handle that
// refreshes them from src. energy may be nil; when set, Refresh also keeps
// batsimgo_energy_consumed_joules current on every tick.
func New(reg prometheus.Registerer, src StatsSource, energy EnergySource) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		src:    src,
		energy: energy,
		nbRunningJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batsimgo_running_jobs",
			Help: "Number of jobs currently running.",
		}),
		nbSwitchingMachines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batsimgo_switching_machines",
			Help: "Number of machines currently mid pstate-transition.",
		}),
		nbWaiters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batsimgo_waiters",
			Help: "Number of outstanding SCHED_CALL_ME_LATER waiters.",
		}),
		nbKillers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batsimgo_killers",
			Help: "Number of outstanding SCHED_KILL_JOB killers.",
		}),
		nbSubmitters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batsimgo_submitters",
			Help: "Number of submitters registered with the server.",
		}),
		nbSubmittersDone: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batsimgo_submitters_finished",
			Help: "Number of submitters that have said SUBMITTER_BYE.",
		}),
		nbRejectedJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batsimgo_rejected_jobs",
			Help: "Number of jobs rejected by the decider via SCHED_REJECT_JOB.",
		}),
		jobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "batsimgo_jobs_completed_total",
			Help: "Number of jobs that reached a terminal state, by state.",
		}, []string{"state"}),
		energyConsumed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batsimgo_energy_consumed_joules",
			Help: "Platform-wide cumulative consumed energy.",
		}),
	}
}

// Refresh pulls a fresh Stats snapshot from the configured source.
func (c *Collectors) Refresh() {
	st := c.src.Stats()
	c.nbRunningJobs.Set(float64(st.NbRunningJobs))
	c.nbSwitchingMachines.Set(float64(st.NbSwitchingMachines))
	c.nbWaiters.Set(float64(st.NbWaiters))
	c.nbKillers.Set(float64(st.NbKillers))
	c.nbSubmitters.Set(float64(st.NbSubmitters))
	c.nbSubmittersDone.Set(float64(st.NbSubmittersFinished))
	c.nbRejectedJobs.Set(float64(st.NbRejectedJobs))
	if c.energy != nil {
		c.energyConsumed.Set(c.energy.TotalConsumedEnergy())
	}
}

// RecordJobCompletion increments the per-terminal-state completion counter.
func (c *Collectors) RecordJobCompletion(state string) {
	c.jobsCompleted.WithLabelValues(state).Inc()
}

// SetEnergyConsumed updates the platform-wide energy gauge.
func (c *Collectors) SetEnergyConsumed(joules float64) {
	c.energyConsumed.Set(joules)
}
