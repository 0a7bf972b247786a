package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stemsi/exstem-session/internal/recovery"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SnapshotWritten(true)
	r.SnapshotWritten(true)
	r.SnapshotWritten(false)
	r.SnapshotPurged(recovery.PurgeStale)
	r.TimerExpired()
	r.Submission(false)
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()

	if got := testutil.ToFloat64(r.snapshotWrites.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok writes, got %v", got)
	}
	if got := testutil.ToFloat64(r.snapshotWrites.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed write, got %v", got)
	}
	if got := testutil.ToFloat64(r.snapshotPurges.WithLabelValues("stale")); got != 1 {
		t.Errorf("expected 1 stale purge, got %v", got)
	}
	if got := testutil.ToFloat64(r.expiries); got != 1 {
		t.Errorf("expected 1 expiry, got %v", got)
	}
	if got := testutil.ToFloat64(r.activeSessions); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}

	var _ recovery.Metrics = r
}
