// Package wire implements the line-oriented, semicolon-delimited record
// format exchanged between agents and the aggregator, and between the
// aggregator and query/control clients. One record per line, terminated
// by '\n'; fields separated by ';', list items by ',', key/value pairs by
// '=', and (for the CPU% field only) a trailing '|' separating the
// percentage from its optional top-process sub-list.
package wire

// CPUShare is one entry of a top-5 highest-CPU-usage process list, as
// carried in the system sample's CPU% field.
type CPUShare struct {
	Name    string
	Percent float64
}

// SystemSample is the payload of a "system" response line.
type SystemSample struct {
	OS         string
	Release    string
	CPUs       int
	MHz        int
	Procs      int
	CPUPercent float64
	Top5       []CPUShare // lowest-first; caller truncates/reverses for display
	UptimeDays int
	MainUsed   uint64
	MainTotal  uint64
	SwapUsed   uint64
	SwapTotal  uint64
	Partitions map[string]int // mount -> percent used
}

// ProcessSample is the payload of a "process <name>" response line.
type ProcessSample struct {
	Name         string
	Start        string // "YYYY-MM-DD HH:MM tz", empty when unknown
	Owners       map[string]int
	Procs        int
	Image        uint64
	MinImage     uint64
	MaxImage     uint64
	Resident     uint64
	MinResident  uint64
	MaxResident  uint64
}

// HostSummary is one line of the client-facing "system"/"system <host>"
// dump: last-known sample values for a host plus its current alarm text.
type HostSummary struct {
	Host       string
	Sample     SystemSample
	HaveValues bool
	Alarm      string
	Error      string
}

// ProcessSummary is one line of the client-facing "process <host> <name>"
// query: last-known sample values for a process plus its alarm text.
type ProcessSummary struct {
	Host    string
	Sample  ProcessSample
	Alarm   string
	Error   string
}

// Message is a transient operator-injected broadcast, as registered by
// the "message" verb and streamed back by "messages".
type Message struct {
	Type      string
	App       string
	StartUnix int64
	EndUnix   int64
	Body      string
}
