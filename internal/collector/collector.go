// Package collector samples local OS state for the agent: system-level
// resource usage and the state of named processes. Two platform back-ends
// exist (Linux-style /proc enumeration, Solaris-style psinfo/kstat
// enumeration); both satisfy the same Collector interface so the agent
// never branches on platform above this package.
package collector

import (
	"runtime"
	"sort"
	"time"

	"github.com/7c/centralmon/internal/wire"
)

// Collector samples system-level and per-process state. A failed probe
// contributes zero for its fields rather than returning an error — callers
// always receive a best-effort sample.
type Collector interface {
	CollectSystem() (wire.SystemSample, error)
	CollectProcess(name string) (wire.ProcessSample, error)
}

// New returns the collector appropriate for the running platform.
func New() Collector {
	return newPlatformCollector()
}

// cpuSnapshot is one instantaneous per-process CPU% reading, shared by both
// back-ends for top-5 share computation.
type cpuSnapshot struct {
	name    string
	percent float64
}

// top5LowestFirst sorts snapshots ascending by CPU% and keeps the five
// highest, returned lowest-first so a trailing consumer can reverse and
// truncate for descending display.
func top5LowestFirst(snapshots []cpuSnapshot) []wire.CPUShare {
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].percent < snapshots[j].percent })

	start := 0
	if len(snapshots) > 5 {
		start = len(snapshots) - 5
	}

	kept := snapshots[start:]
	out := make([]wire.CPUShare, len(kept))
	for i, s := range kept {
		out[i] = wire.CPUShare{Name: s.name, Percent: s.percent}
	}
	return out
}

// totalCPUPercent sums per-process shares and divides by processor count,
// matching the "total CPU% is the sum divided by processor count" rule.
func totalCPUPercent(snapshots []cpuSnapshot, cpus int) float64 {
	if cpus <= 0 {
		cpus = 1
	}
	var sum float64
	for _, s := range snapshots {
		sum += s.percent
	}
	return sum / float64(cpus)
}

const sampleWindow = 200 * time.Millisecond

func numCPU() int {
	return runtime.NumCPU()
}
