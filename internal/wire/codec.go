package wire

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MalformedError is returned when a line cannot be decoded into the record
// shape its leading verb requires. The line is dropped by the caller; the
// connection is not affected (§7: malformed wire record).
type MalformedError struct {
	Verb string
	Line string
	Want int
	Got  int
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s record: want %d fields, got %d: %q", e.Verb, e.Want, e.Got, e.Line)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseUint(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- system (agent -> aggregator response to a "system" request) ---

// EncodeSystemResponse builds the agent's reply to a "system" request.
func EncodeSystemResponse(s SystemSample) string {
	cpuField := formatFloat(s.CPUPercent)
	if len(s.Top5) > 0 {
		parts := make([]string, len(s.Top5))
		for i, c := range s.Top5 {
			parts[i] = fmt.Sprintf("%s=%s", c.Name, formatFloat(c.Percent))
		}
		cpuField += "|" + strings.Join(parts, ",")
	}

	keys := sortedKeys(s.Partitions)
	partFields := make([]string, len(keys))
	for i, k := range keys {
		partFields[i] = fmt.Sprintf("%s=%d", k, s.Partitions[k])
	}

	return fmt.Sprintf("system;%s;%s;%d;%d;%d;%s;%d;%d;%d;%d;%d;%s\n",
		s.OS, s.Release, s.CPUs, s.MHz, s.Procs, cpuField, s.UptimeDays,
		s.MainUsed, s.MainTotal, s.SwapUsed, s.SwapTotal, strings.Join(partFields, ","))
}

// DecodeSystemResponse parses the agent's "system;…" reply line.
func DecodeSystemResponse(line string) (SystemSample, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Split(line, ";")
	if len(fields) != 13 || fields[0] != "system" {
		return SystemSample{}, &MalformedError{Verb: "system", Line: line, Want: 13, Got: len(fields)}
	}

	var s SystemSample
	s.OS = fields[1]
	s.Release = fields[2]
	s.CPUs = parseInt(fields[3])
	s.MHz = parseInt(fields[4])
	s.Procs = parseInt(fields[5])

	cpuField := fields[6]
	if idx := strings.IndexByte(cpuField, '|'); idx >= 0 {
		s.CPUPercent = parseFloat(cpuField[:idx])
		for _, item := range strings.Split(cpuField[idx+1:], ",") {
			if item == "" {
				continue
			}
			kv := strings.SplitN(item, "=", 2)
			if len(kv) != 2 {
				continue
			}
			s.Top5 = append(s.Top5, CPUShare{Name: kv[0], Percent: parseFloat(kv[1])})
		}
	} else {
		s.CPUPercent = parseFloat(cpuField)
	}

	s.UptimeDays = parseInt(fields[7])
	s.MainUsed = parseUint(fields[8])
	s.MainTotal = parseUint(fields[9])
	s.SwapUsed = parseUint(fields[10])
	s.SwapTotal = parseUint(fields[11])

	if fields[12] != "" {
		s.Partitions = make(map[string]int)
		for _, item := range strings.Split(fields[12], ",") {
			kv := strings.SplitN(item, "=", 2)
			if len(kv) != 2 {
				continue
			}
			s.Partitions[kv[0]] = parseInt(kv[1])
		}
	}

	return s, nil
}

// --- process (agent -> aggregator response to a "process <name>" request) ---

// EmptyProcessPlaceholder is the fixed reply the agent sends when asked
// to sample a process with an empty name.
const EmptyProcessPlaceholder = "process;;;;0;0;0;0;0;0;0\n"

// EncodeProcessResponse builds the agent's reply to a "process <name>" request.
func EncodeProcessResponse(p ProcessSample) string {
	if p.Name == "" {
		return EmptyProcessPlaceholder
	}

	keys := make([]string, 0, len(p.Owners))
	for k := range p.Owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ownerFields := make([]string, len(keys))
	for i, k := range keys {
		ownerFields[i] = fmt.Sprintf("%s=%d", k, p.Owners[k])
	}

	return fmt.Sprintf("process;%s;%s;%s;%d;%d;%d;%d;%d;%d;%d\n",
		p.Name, p.Start, strings.Join(ownerFields, ","),
		p.Procs, p.Image, p.MinImage, p.MaxImage, p.Resident, p.MinResident, p.MaxResident)
}

// DecodeProcessResponse parses the agent's "process;…" reply line.
func DecodeProcessResponse(line string) (ProcessSample, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Split(line, ";")
	if len(fields) != 11 || fields[0] != "process" {
		return ProcessSample{}, &MalformedError{Verb: "process", Line: line, Want: 11, Got: len(fields)}
	}

	var p ProcessSample
	p.Name = fields[1]
	p.Start = fields[2]
	if fields[3] != "" {
		p.Owners = make(map[string]int)
		for _, item := range strings.Split(fields[3], ",") {
			kv := strings.SplitN(item, "=", 2)
			if len(kv) != 2 {
				continue
			}
			p.Owners[kv[0]] = parseInt(kv[1])
		}
	}
	p.Procs = parseInt(fields[4])
	p.Image = parseUint(fields[5])
	p.MinImage = parseUint(fields[6])
	p.MaxImage = parseUint(fields[7])
	p.Resident = parseUint(fields[8])
	p.MinResident = parseUint(fields[9])
	p.MaxResident = parseUint(fields[10])
	return p, nil
}

// --- requests (aggregator -> agent) ---

// EncodeSystemRequest builds the aggregator's periodic "system" pull.
func EncodeSystemRequest() string { return "system\n" }

// EncodeProcessRequest builds the aggregator's periodic "process <name>" pull.
func EncodeProcessRequest(name string) string { return fmt.Sprintf("process %s\n", name) }

// EncodeScriptCommand builds the two-line remediation trigger the
// aggregator sends to an agent: "script <argv…>\n<json-payload>\n".
func EncodeScriptCommand(argv []string, payload []byte) string {
	return fmt.Sprintf("script %s\n%s\n", strings.Join(argv, " "), payload)
}

// ParseRequestVerb splits a line into its leading verb and remaining
// argument text, on whichever of ' ' or ';' occurs first. Response/sample
// lines ("system;…", "process;…") carry no space before their first
// field, so they split on ';'; request and client query-verb lines
// ("process httpd", "message info;MyApp;…") carry the verb as a
// space-delimited token even when their argument text is itself
// semicolon-delimited.
func ParseRequestVerb(line string) (verb, rest string) {
	line = strings.TrimSuffix(line, "\n")
	spaceIdx := strings.IndexByte(line, ' ')
	semiIdx := strings.IndexByte(line, ';')

	switch {
	case spaceIdx < 0 && semiIdx < 0:
		return line, ""
	case spaceIdx < 0:
		return line[:semiIdx], line[semiIdx+1:]
	case semiIdx < 0:
		return line[:spaceIdx], line[spaceIdx+1:]
	case spaceIdx < semiIdx:
		return line[:spaceIdx], line[spaceIdx+1:]
	default:
		return line[:semiIdx], line[semiIdx+1:]
	}
}

// --- client query verbs (§6) ---

// EncodeHostSummary builds one line of the client-facing "system"/"system
// <host>" dump.
func EncodeHostSummary(h HostSummary) string {
	if !h.HaveValues {
		empty := strings.Repeat(";", 12)
		return fmt.Sprintf("%s;%s\n", empty, h.Error)
	}

	s := h.Sample
	keys := sortedKeys(s.Partitions)
	partFields := make([]string, len(keys))
	for i, k := range keys {
		partFields[i] = fmt.Sprintf("%s=%d", k, s.Partitions[k])
	}

	return fmt.Sprintf("%s;%s;%s;%d;%d;%d;%s;%d;%d;%d;%d;%d;%s;%s\n",
		h.Host, s.OS, s.Release, s.CPUs, s.MHz, s.Procs, formatFloat(s.CPUPercent),
		s.UptimeDays, s.MainUsed, s.MainTotal, s.SwapUsed, s.SwapTotal,
		strings.Join(partFields, ","), h.Alarm)
}

// EncodeProcessSummary builds the single-line reply to "process <host> <name>".
func EncodeProcessSummary(p ProcessSummary) string {
	if p.Error != "" {
		empty := strings.Repeat(";", 10)
		return fmt.Sprintf("%s;%s\n", empty, p.Error)
	}

	s := p.Sample
	keys := make([]string, 0, len(s.Owners))
	for k := range s.Owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ownerFields := make([]string, len(keys))
	for i, k := range keys {
		ownerFields[i] = fmt.Sprintf("%s=%d", k, s.Owners[k])
	}

	return fmt.Sprintf("%s;%s;%s;%s;%d;%d;%d;%d;%d;%d;%d;%s\n",
		p.Host, s.Name, s.Start, strings.Join(ownerFields, ","),
		s.Procs, s.Image, s.MinImage, s.MaxImage, s.Resident, s.MinResident, s.MaxResident, p.Alarm)
}

// EncodeMessageLine builds one line of the "messages" stream.
func EncodeMessageLine(m Message) string {
	return fmt.Sprintf("%s;%s;%s\n", m.Type, m.App, m.Body)
}

// DecodeMessageCommand parses the body of a "message <type>;<app>;<startEpoch>;<endEpoch>;<body>" command.
func DecodeMessageCommand(rest string) (Message, error) {
	fields := strings.SplitN(rest, ";", 5)
	if len(fields) != 5 {
		return Message{}, &MalformedError{Verb: "message", Line: rest, Want: 5, Got: len(fields)}
	}
	start, _ := strconv.ParseInt(fields[2], 10, 64)
	end, _ := strconv.ParseInt(fields[3], 10, 64)
	return Message{Type: fields[0], App: fields[1], StartUnix: start, EndUnix: end, Body: fields[4]}, nil
}

// DecodeHostSummary parses one line of the client-facing "system"/"system
// <host>" dump, the inverse of EncodeHostSummary.
func DecodeHostSummary(line string) (HostSummary, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Split(line, ";")
	if len(fields) != 14 {
		return HostSummary{}, &MalformedError{Verb: "host-summary", Line: line, Want: 14, Got: len(fields)}
	}

	h := HostSummary{Host: fields[0]}
	if h.Host == "" {
		h.Error = fields[13]
		return h, nil
	}

	var s SystemSample
	s.OS = fields[1]
	s.Release = fields[2]
	s.CPUs = parseInt(fields[3])
	s.MHz = parseInt(fields[4])
	s.Procs = parseInt(fields[5])
	s.CPUPercent = parseFloat(fields[6])
	s.UptimeDays = parseInt(fields[7])
	s.MainUsed = parseUint(fields[8])
	s.MainTotal = parseUint(fields[9])
	s.SwapUsed = parseUint(fields[10])
	s.SwapTotal = parseUint(fields[11])
	if fields[12] != "" {
		s.Partitions = make(map[string]int)
		for _, item := range strings.Split(fields[12], ",") {
			kv := strings.SplitN(item, "=", 2)
			if len(kv) != 2 {
				continue
			}
			s.Partitions[kv[0]] = parseInt(kv[1])
		}
	}

	h.Sample = s
	h.HaveValues = true
	h.Alarm = fields[13]
	return h, nil
}

// DecodeProcessSummary parses the single-line reply to "process <host>
// <name>", the inverse of EncodeProcessSummary.
func DecodeProcessSummary(line string) (ProcessSummary, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Split(line, ";")
	if len(fields) != 12 {
		return ProcessSummary{}, &MalformedError{Verb: "process-summary", Line: line, Want: 12, Got: len(fields)}
	}

	p := ProcessSummary{Host: fields[0]}
	if p.Host == "" {
		p.Error = fields[11]
		return p, nil
	}

	var s ProcessSample
	s.Name = fields[1]
	s.Start = fields[2]
	if fields[3] != "" {
		s.Owners = make(map[string]int)
		for _, item := range strings.Split(fields[3], ",") {
			kv := strings.SplitN(item, "=", 2)
			if len(kv) != 2 {
				continue
			}
			s.Owners[kv[0]] = parseInt(kv[1])
		}
	}
	s.Procs = parseInt(fields[4])
	s.Image = parseUint(fields[5])
	s.MinImage = parseUint(fields[6])
	s.MaxImage = parseUint(fields[7])
	s.Resident = parseUint(fields[8])
	s.MinResident = parseUint(fields[9])
	s.MaxResident = parseUint(fields[10])

	p.Sample = s
	p.Alarm = fields[11]
	return p, nil
}

// DecodeMessageLine parses one line of the "messages" stream, the inverse
// of EncodeMessageLine.
func DecodeMessageLine(line string) (Message, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.SplitN(line, ";", 3)
	if len(fields) != 3 {
		return Message{}, &MalformedError{Verb: "messages", Line: line, Want: 3, Got: len(fields)}
	}
	return Message{Type: fields[0], App: fields[1], Body: fields[2]}, nil
}
