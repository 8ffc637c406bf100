package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.RecordStreamStart("remote")
	c.RecordStreamEnd("remote", 250*time.Millisecond, "")
	c.RecordStreamStart("local_process")
	c.RecordStreamEnd("local_process", time.Second, "timeout")
	c.RecordCancellation()
	c.RecordTokenUsage("sonnet", 100, 40)
	c.RecordTokenUsage("sonnet", 10, 5)

	snap := c.GetSnapshot()
	if snap.StreamsStarted != 2 || snap.StreamsCompleted != 1 {
		t.Fatalf("started=%d completed=%d", snap.StreamsStarted, snap.StreamsCompleted)
	}
	if snap.StreamErrors["timeout"] != 1 {
		t.Fatalf("StreamErrors = %v", snap.StreamErrors)
	}
	if snap.Cancellations != 1 {
		t.Fatalf("Cancellations = %d", snap.Cancellations)
	}
	if snap.TokensByModel["sonnet"] != 155 {
		t.Fatalf("TokensByModel = %v", snap.TokensByModel)
	}
	if snap.BackendLatency["local_process"] != 1000 {
		t.Fatalf("BackendLatency = %v", snap.BackendLatency)
	}

	// Snapshot maps are copies, not views.
	snap.StreamErrors["timeout"] = 99
	if c.GetSnapshot().StreamErrors["timeout"] != 1 {
		t.Fatal("snapshot aliases collector state")
	}
}

func TestFormatPrometheus(t *testing.T) {
	c := NewCollector()
	c.RecordStreamStart("loopback")
	c.RecordStreamEnd("loopback", 10*time.Millisecond, "")

	out := FormatPrometheus(c.GetSnapshot())
	for _, want := range []string{
		"emberchat_uptime_seconds",
		"emberchat_streams_started_total 1",
		"emberchat_streams_completed_total 1",
		`emberchat_backend_requests_total{kind="loopback"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
