package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stemsi/exstem-session/internal/recovery"
)

// Recorder holds the session engine's Prometheus collectors.
type Recorder struct {
	snapshotWrites *prometheus.CounterVec
	snapshotPurges *prometheus.CounterVec
	expiries       prometheus.Counter
	submissions    *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// New creates a Recorder and registers its collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exstem",
			Subsystem: "recovery",
			Name:      "snapshot_writes_total",
			Help:      "Recovery snapshot writes by outcome.",
		}, []string{"outcome"}),
		snapshotPurges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exstem",
			Subsystem: "recovery",
			Name:      "snapshot_purges_total",
			Help:      "Recovery snapshots removed, by reason.",
		}, []string{"reason"}),
		expiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exstem",
			Subsystem: "timer",
			Name:      "expiries_total",
			Help:      "Attempts whose time budget ran out.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exstem",
			Subsystem: "session",
			Name:      "submissions_total",
			Help:      "Finish requests by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "exstem",
			Subsystem: "session",
			Name:      "active",
			Help:      "Open session streams.",
		}),
	}

	if reg != nil {
		reg.MustRegister(r.snapshotWrites, r.snapshotPurges, r.expiries, r.submissions, r.activeSessions)
	}
	return r
}

// SnapshotWritten implements recovery.Metrics.
func (r *Recorder) SnapshotWritten(ok bool) {
	r.snapshotWrites.WithLabelValues(outcome(ok)).Inc()
}

// SnapshotPurged implements recovery.Metrics.
func (r *Recorder) SnapshotPurged(reason recovery.PurgeReason) {
	r.snapshotPurges.WithLabelValues(string(reason)).Inc()
}

// TimerExpired counts one expired attempt.
func (r *Recorder) TimerExpired() {
	r.expiries.Inc()
}

// Submission counts one finish request.
func (r *Recorder) Submission(ok bool) {
	r.submissions.WithLabelValues(outcome(ok)).Inc()
}

// SessionOpened increments the active session gauge.
func (r *Recorder) SessionOpened() {
	r.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (r *Recorder) SessionClosed() {
	r.activeSessions.Dec()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
