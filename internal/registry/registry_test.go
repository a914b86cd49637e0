package registry

import (
	"testing"
	"time"

	"github.com/7c/centralmon/internal/wire"
)

func TestBindRejectsDuplicate(t *testing.T) {
	r := New()
	if _, err := r.Bind("A"); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if _, err := r.Bind("A"); err == nil {
		t.Fatal("expected error binding already-bound host")
	}
	r.Release("A")
	if _, err := r.Bind("A"); err != nil {
		t.Fatalf("bind after release: %v", err)
	}
}

func TestAlarmEdgeDiskScenario(t *testing.T) {
	// S3 – disk alarm edge.
	var e AlarmEdge

	e.CurrentAlarm = "/ partition is 91% filled which is more than the maximum 90%"
	if !e.ShouldNotify() {
		t.Fatal("first alarm should notify")
	}
	e.Advance()
	if e.PreviousAlarm != e.CurrentAlarm {
		t.Fatal("previous alarm not advanced")
	}

	// Next sample with /=91 -> same alarm text, no new notification.
	if e.ShouldNotify() {
		t.Fatal("repeated identical alarm should not re-notify")
	}
	e.Advance()

	// Sample with /=50 -> no alarm, edge clears.
	e.CurrentAlarm = ""
	if e.ShouldNotify() {
		t.Fatal("empty current alarm should never notify")
	}
	e.Advance()
	if e.PreviousAlarm != "" {
		t.Fatal("previous alarm must be cleared by an all-clear sample")
	}

	// Sample with /=95 after the clear -> fresh breach, re-notifies.
	e.CurrentAlarm = "/ partition is 95% filled which is more than the maximum 90%"
	if !e.ShouldNotify() {
		t.Fatal("breach after an intermediate clear should re-notify")
	}
}

func TestAlarmEdgePageTransitionRefire(t *testing.T) {
	var e AlarmEdge
	e.CurrentAlarm = "using 95% swap memory which is more than the maximum 90%"
	e.CurrentPage = true
	if !e.ShouldNotify() {
		t.Fatal("first page alarm should notify")
	}
	e.Advance()

	// Sustained page: no re-fire.
	if e.ShouldNotify() {
		t.Fatal("sustained page should not re-notify")
	}

	// Page drops then rises again: re-fire.
	e.CurrentPage = false
	e.Advance()
	e.CurrentPage = true
	if !e.ShouldNotify() {
		t.Fatal("page transitioning false->true should re-notify")
	}
}

func TestMessageLifecycle(t *testing.T) {
	r := New()
	r.AddMessage(wire.Message{Type: "info", App: "MyApp", StartUnix: 1000, EndUnix: 2000, Body: "Service degraded"})

	live := r.LiveMessages(time.Unix(1500, 0))
	if len(live) != 1 || live[0].Body != "Service degraded" {
		t.Fatalf("got %+v", live)
	}

	live = r.LiveMessages(time.Unix(2500, 0))
	if len(live) != 0 {
		t.Fatalf("expected reaped message set, got %+v", live)
	}
}

func TestMessageBodySanitized(t *testing.T) {
	r := New()
	r.AddMessage(wire.Message{Type: "info", App: "MyApp", StartUnix: 0, EndUnix: 9999999999, Body: "bad;body\nwith newline"})
	live := r.LiveMessages(time.Unix(1, 0))
	if len(live) != 1 {
		t.Fatalf("got %+v", live)
	}
	if live[0].Body != "badbody with newline" {
		t.Fatalf("got %q", live[0].Body)
	}
}

func TestProcessThresholdsEqual(t *testing.T) {
	a := ProcessThresholds{CatalogID: 1, MinProcesses: 1, MaxProcesses: 5}
	b := ProcessThresholds{CatalogID: 2, MinProcesses: 1, MaxProcesses: 5}
	if !a.Equal(b) {
		t.Fatal("thresholds should compare equal regardless of CatalogID")
	}
	b.MaxProcesses = 6
	if a.Equal(b) {
		t.Fatal("thresholds with differing bounds should not compare equal")
	}
}

func TestDueForPull(t *testing.T) {
	h := NewHost("A")
	now := time.Now()
	h.LastEmission = now
	if h.DueForPull(now.Add(20 * time.Second)) {
		t.Fatal("should not be due before 30s elapses")
	}
	if !h.DueForPull(now.Add(31 * time.Second)) {
		t.Fatal("should be due after 30s elapses")
	}
}
