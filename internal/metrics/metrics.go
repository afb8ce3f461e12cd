// Package metrics exposes the Prometheus counters and gauges the
// pipeline's components publish to. A single Registry is constructed in
// main and passed by reference, matching the process-wide-singleton
// guidance for the DB pool, KV client and offload channel.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric imgrelayd exports.
type Registry struct {
	JobsClaimed      *prometheus.CounterVec
	JobsCommitted    prometheus.Counter
	JobsFailed       *prometheus.CounterVec
	SweepRuns        prometheus.Counter
	SweepActions     *prometheus.CounterVec
	ResolverHits     *prometheus.CounterVec
	OffloadDropped   prometheus.Counter
	OffloadExecuted  prometheus.Counter
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		JobsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgrelay_jobs_claimed_total",
			Help: "Number of queue rows claimed by a worker.",
		}, []string{"bot_id"}),
		JobsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgrelay_jobs_committed_total",
			Help: "Number of uploads committed into the files table.",
		}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgrelay_jobs_failed_total",
			Help: "Number of jobs transitioned to the FAILED state, by bot.",
		}, []string{"bot_id"}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgrelay_sweep_runs_total",
			Help: "Number of non-empty reconciliation sweeps.",
		}),
		SweepActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgrelay_sweep_actions_total",
			Help: "Rows touched per sweep phase.",
		}, []string{"phase"}),
		ResolverHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgrelay_resolver_hits_total",
			Help: "Resolver lookups by the cache tier that served them.",
		}, []string{"tier"}),
		OffloadDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgrelay_offload_dropped_total",
			Help: "Offload items dropped because the queue was full.",
		}),
		OffloadExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgrelay_offload_executed_total",
			Help: "Offload items executed by the drainer.",
		}),
	}
	reg.MustRegister(
		r.JobsClaimed, r.JobsCommitted, r.JobsFailed,
		r.SweepRuns, r.SweepActions, r.ResolverHits,
		r.OffloadDropped, r.OffloadExecuted,
	)
	return r
}
