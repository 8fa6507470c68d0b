package stats

import (
	"errors"
	"testing"
	"time"
)

func TestObserveSeparatesOperations(t *testing.T) {
	r := NewRecorder(16)
	r.Observe(OpChat, 100*time.Millisecond, nil)
	r.Observe(OpChat, 300*time.Millisecond, nil)
	r.Observe(OpEmbed, 50*time.Millisecond, nil)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(snap))
	}
	chat := snap[OpChat]
	if chat.Calls != 2 || chat.Failures != 0 {
		t.Errorf("chat counters wrong: %+v", chat)
	}
	if chat.AvgMs != 200 {
		t.Errorf("expected chat avg=200, got %f", chat.AvgMs)
	}
	if embed := snap[OpEmbed]; embed.Calls != 1 || embed.MaxMs != 50 {
		t.Errorf("embed snapshot wrong: %+v", embed)
	}
}

func TestObserveCountsFailures(t *testing.T) {
	r := NewRecorder(16)
	r.Observe(OpEmbed, 10*time.Millisecond, nil)
	r.Observe(OpEmbed, 2*time.Second, errors.New("deadline exceeded"))

	snap := r.Snapshot()[OpEmbed]
	if snap.Calls != 2 || snap.Failures != 1 {
		t.Fatalf("expected 2 calls / 1 failure, got %+v", snap)
	}
	// The failed call's duration still counts toward latency.
	if snap.MaxMs != 2000 {
		t.Errorf("expected max=2000 including the failed call, got %d", snap.MaxMs)
	}
}

func TestSnapshotPercentilesNearestRank(t *testing.T) {
	r := NewRecorder(16)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		r.Observe(OpChat, time.Duration(ms)*time.Millisecond, nil)
	}

	snap := r.Snapshot()[OpChat]
	if snap.P50Ms != 300 {
		t.Errorf("expected p50=300, got %d", snap.P50Ms)
	}
	if snap.P95Ms != 500 {
		t.Errorf("expected p95=500, got %d", snap.P95Ms)
	}
	if snap.MaxMs != 500 {
		t.Errorf("expected max=500, got %d", snap.MaxMs)
	}
}

func TestWindowEvictsOldestButKeepsCounters(t *testing.T) {
	r := NewRecorder(4)
	// The first slow call falls out of the 4-slot window...
	r.Observe(OpChat, 9*time.Second, nil)
	for i := 0; i < 4; i++ {
		r.Observe(OpChat, 100*time.Millisecond, nil)
	}

	snap := r.Snapshot()[OpChat]
	if snap.MaxMs != 100 {
		t.Errorf("evicted call must leave the window, got max=%d", snap.MaxMs)
	}
	// ...but lifetime counters remember it.
	if snap.Calls != 5 {
		t.Errorf("expected 5 lifetime calls, got %d", snap.Calls)
	}
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder
	r.Observe(OpChat, time.Second, nil)
	if snap := r.Snapshot(); len(snap) != 0 {
		t.Fatalf("nil recorder must report nothing, got %v", snap)
	}
}

func TestEmptySnapshot(t *testing.T) {
	if snap := NewRecorder(8).Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap)
	}
}
