// Package registry holds the aggregator's host state registry (C6): one
// record per authorised monitored host, its process table, alarm edges,
// and transient operator broadcast messages. The registry is owned
// exclusively by the connection hub's single-threaded event loop (§5) —
// no internal locking is used, matching the "one shared resource, no
// locking needed" resource model.
package registry

import (
	"time"

	"github.com/7c/centralmon/internal/wire"
)

// AlarmEdge is the two-field edge-detection state spec.md §9 asks for in
// place of treating an alarm string's emptiness as a boolean: previous
// alarm text and page flag hold the most recent sample's values (see
// Advance), and are cleared on the first all-clear sample so a later
// breach re-fires.
type AlarmEdge struct {
	CurrentAlarm  string
	PreviousAlarm string
	CurrentPage   bool
	PreviousPage  bool
}

// HasFired reports whether this edge is currently in a notified alarm
// state (cleared again once the condition goes away, see Advance).
func (e AlarmEdge) HasFired() bool { return e.PreviousAlarm != "" }

// ShouldNotify reports whether the current alarm text represents a new
// edge that should fire a notification, per the rule in §4.6: current
// alarm non-empty AND (previous alarm empty OR page transitioned
// false->true).
func (e AlarmEdge) ShouldNotify() bool {
	if e.CurrentAlarm == "" {
		return false
	}
	return e.PreviousAlarm == "" || (!e.PreviousPage && e.CurrentPage)
}

// Advance folds the current sample into previous, unconditionally: every
// sample is recorded, not just the ones that notified, so a page flag
// that drops and later rises is still seen as a false->true transition
// by ShouldNotify, and clearing on an all-clear sample lets a later
// breach re-fire rather than staying silenced (see DESIGN.md
// "alarm-clear semantics"). Call only after ShouldNotify has already
// been consulted for this sample.
func (e *AlarmEdge) Advance() {
	if e.CurrentAlarm == "" {
		e.PreviousAlarm = ""
		e.PreviousPage = false
		return
	}
	e.PreviousAlarm = e.CurrentAlarm
	e.PreviousPage = e.CurrentPage
}

// HostThresholds are the per-host bounds loaded from the catalog (§4.5).
type HostThresholds struct {
	MaxCPUPercent  float64
	MaxDiskPercent int
	MaxMainPercent int
	MaxSwapPercent int
	MaxProcesses   int
}

// ProcessThresholds are the per-daemon bounds loaded from the catalog
// (§4.5), plus the catalog row id. Threshold changes on resync are
// detected by Equal, which ignores the row id.
type ProcessThresholds struct {
	CatalogID    int64
	MinProcesses int
	MaxProcesses int
	MinImageKB   uint64
	MaxImageKB   uint64
	MinResidentKB uint64
	MaxResidentKB uint64
	Owner        string
	Script       string
	DelaySeconds int
}

// Equal reports whether two ProcessThresholds carry identical bounds,
// ignoring CatalogID — used by the syncer to decide whether a catalog row
// change requires dropping accumulated sample/edge state (§4.5).
func (t ProcessThresholds) Equal(o ProcessThresholds) bool {
	return t.MinProcesses == o.MinProcesses &&
		t.MaxProcesses == o.MaxProcesses &&
		t.MinImageKB == o.MinImageKB &&
		t.MaxImageKB == o.MaxImageKB &&
		t.MinResidentKB == o.MinResidentKB &&
		t.MaxResidentKB == o.MaxResidentKB &&
		t.Owner == o.Owner &&
		t.Script == o.Script &&
		t.DelaySeconds == o.DelaySeconds
}

// Process is the per-monitored-daemon state inside a host record.
type Process struct {
	Name       string
	Thresholds ProcessThresholds

	Sample        wire.ProcessSample
	ValuesPresent bool

	Edge AlarmEdge

	// FirstZero is the time the process was first observed with zero
	// instances, used for delayed "not running" alarms. Zero value means
	// unset (the process has procs>0 or has never been sampled).
	FirstZero time.Time

	// Checking is set at the start of a sync pass and cleared when a
	// matching catalog row is reconciled; any record still Checking
	// after all rows are processed is dropped (§4.5).
	Checking bool
}

// Host is the per-agent state the aggregator owns, keyed by host name.
type Host struct {
	Name string

	Sample        wire.SystemSample
	ValuesPresent bool

	Thresholds       HostThresholds
	ThresholdsLoaded bool

	Edge AlarmEdge

	Processes map[string]*Process

	// LastEmission is the last time a system/process request pair was
	// appended to this host's outbound buffer, for the 30s pull cadence.
	LastEmission time.Time
}

// NewHost creates an empty host record for name.
func NewHost(name string) *Host {
	return &Host{Name: name, Processes: make(map[string]*Process)}
}

// DueForPull reports whether the 30-second pull cadence (§4.4 step 6) has
// elapsed since the host's last emission.
func (h *Host) DueForPull(now time.Time) bool {
	return now.Sub(h.LastEmission) > 30*time.Second
}
