package alarm

import (
	"testing"
	"time"

	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/wire"
)

func TestEvaluateHostDiskAlarm(t *testing.T) {
	// S3 – disk alarm edge.
	s := wire.SystemSample{
		OS: "Linux", Release: "5.4", CPUs: 4, MHz: 2400, Procs: 200, CPUPercent: 5,
		UptimeDays: 10, MainUsed: 40, MainTotal: 0, SwapUsed: 0, SwapTotal: 0,
		Partitions: map[string]int{"/": 91, "/var": 50},
	}
	th := registry.HostThresholds{MaxDiskPercent: 90}

	alarmText, page := EvaluateHost(s, th)
	want := "/ partition is 91% filled which is more than the maximum 90%"
	if alarmText != want {
		t.Fatalf("got %q, want %q", alarmText, want)
	}
	if page {
		t.Fatal("disk alarm must not set page")
	}
}

func TestEvaluateHostOrderingAndCommaJoin(t *testing.T) {
	s := wire.SystemSample{
		Procs: 500, CPUPercent: 99, MainUsed: 95, MainTotal: 100, SwapUsed: 95, SwapTotal: 100,
		Partitions: map[string]int{"/data": 99},
	}
	th := registry.HostThresholds{
		MaxProcesses: 100, MaxCPUPercent: 80, MaxMainPercent: 90, MaxSwapPercent: 90, MaxDiskPercent: 90,
	}
	alarmText, page := EvaluateHost(s, th)
	if !page {
		t.Fatal("swap condition should set page")
	}
	wantOrder := []string{"processes are running", "CPU", "main memory", "swap memory", "partition is"}
	pos := 0
	for _, frag := range wantOrder {
		idx := indexFrom(alarmText, frag, pos)
		if idx < 0 {
			t.Fatalf("expected fragment %q after position %d in %q", frag, pos, alarmText)
		}
		pos = idx
	}
}

func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	idx := indexOf(s[from:], substr)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestEvaluateHostBoundaryNoMainAlarmWhenZeroThresholdOrTotal(t *testing.T) {
	s := wire.SystemSample{MainUsed: 99, MainTotal: 100}
	if alarmText, _ := EvaluateHost(s, registry.HostThresholds{MaxMainPercent: 0}); alarmText != "" {
		t.Fatalf("maxMain=0 must never fire: got %q", alarmText)
	}

	s2 := wire.SystemSample{MainUsed: 99, MainTotal: 0}
	if alarmText, _ := EvaluateHost(s2, registry.HostThresholds{MaxMainPercent: 10}); alarmText != "" {
		t.Fatalf("mainTotal=0 must never fire: got %q", alarmText)
	}
}

func TestEvaluateHostCDROMExcluded(t *testing.T) {
	s := wire.SystemSample{Partitions: map[string]int{"/mnt/cdrom0": 99}}
	alarmText, _ := EvaluateHost(s, registry.HostThresholds{MaxDiskPercent: 50})
	if alarmText != "" {
		t.Fatalf("cdrom mount must never fire a disk alarm: got %q", alarmText)
	}
}

func TestEvaluateProcessNotRunningDelayed(t *testing.T) {
	// S4 – process absent, delayed.
	th := registry.ProcessThresholds{MinProcesses: 1, DelaySeconds: 60}
	t0 := time.Unix(0, 0)
	sample := wire.ProcessSample{Procs: 0}

	alarmText, page, firstZero := EvaluateProcess("worker", sample, th, time.Time{}, t0)
	if alarmText != "" || page {
		t.Fatalf("no alarm expected at t=0, got %q page=%v", alarmText, page)
	}
	if firstZero != t0 {
		t.Fatalf("firstZero should be set to t0, got %v", firstZero)
	}

	t30 := t0.Add(30 * time.Second)
	alarmText, page, firstZero = EvaluateProcess("worker", sample, th, firstZero, t30)
	if alarmText != "" || page {
		t.Fatalf("no alarm expected at t=30, got %q page=%v", alarmText, page)
	}

	t61 := t0.Add(61 * time.Second)
	alarmText, page, _ = EvaluateProcess("worker", sample, th, firstZero, t61)
	if alarmText != "worker is not currently running" || !page {
		t.Fatalf("expected not-currently-running alarm at t=61, got %q page=%v", alarmText, page)
	}
}

func TestEvaluateProcessOwnerMismatch(t *testing.T) {
	// S5 – owner mismatch.
	th := registry.ProcessThresholds{Owner: "nobody"}
	sample := wire.ProcessSample{Procs: 2, Owners: map[string]int{"root": 2}}
	alarmText, page, _ := EvaluateProcess("web", sample, th, time.Time{}, time.Now())
	want := "web is not running under the required nobody account"
	if alarmText != want || !page {
		t.Fatalf("got %q page=%v, want %q page=true", alarmText, page, want)
	}
}

func TestEvaluateProcessDelayZeroFiresImmediately(t *testing.T) {
	th := registry.ProcessThresholds{DelaySeconds: 0}
	sample := wire.ProcessSample{Procs: 0}
	alarmText, page, _ := EvaluateProcess("worker", sample, th, time.Time{}, time.Now())
	if alarmText == "" || !page {
		t.Fatal("delay<=0 should fire immediately on first zero-procs sample")
	}
}

func TestEvaluateProcessMinMaxMutuallyExclusive(t *testing.T) {
	th := registry.ProcessThresholds{MinProcesses: 2, MaxProcesses: 5}
	sample := wire.ProcessSample{Procs: 1}
	alarmText, _, _ := EvaluateProcess("svc", sample, th, time.Time{}, time.Now())
	if alarmText != "svc is running 1 processes which is less than the minimum 2 processes" {
		t.Fatalf("got %q", alarmText)
	}

	sample.Procs = 9
	alarmText, _, _ = EvaluateProcess("svc", sample, th, time.Time{}, time.Now())
	if alarmText != "svc is running 9 processes which is more than the maximum 5 processes" {
		t.Fatalf("got %q", alarmText)
	}
}
