package server

import (
	"log/slog"
	"strings"
	"time"

	"github.com/7c/centralmon/internal/alarm"
	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/wire"
)

// dispatch routes one inbound line from conn. Agent connections send
// ';'-delimited sample records; every other connection sends a
// whitespace-led query verb, including the as-yet-unadmitted "server
// <name>" handshake line (§4.4).
func (h *Hub) dispatch(c *Connection, rawLine string) {
	line := strings.TrimRight(rawLine, "\n")
	if line == "" {
		return
	}
	if c.IsAgent {
		h.dispatchAgent(c, line)
		return
	}
	h.dispatchClient(c, line)
}

func (h *Hub) dispatchAgent(c *Connection, line string) {
	switch {
	case strings.HasPrefix(line, "system;"):
		s, err := wire.DecodeSystemResponse(line)
		if err != nil {
			h.logMalformed(c, err)
			return
		}
		h.applySystemSample(c, s)

	case strings.HasPrefix(line, "process;"):
		p, err := wire.DecodeProcessResponse(line)
		if err != nil {
			h.logMalformed(c, err)
			return
		}
		h.applyProcessSample(c, p)

	default:
		h.logMalformed(c, &wire.MalformedError{Verb: "agent", Line: line})
	}
}

func (h *Hub) logMalformed(c *Connection, err error) {
	h.Logger.Warn("server: dropping malformed record", slog.String("host", c.HostName), slog.Any("error", err))
}

// applySystemSample updates a host's record from a fresh system sample
// and recomputes its alarm edge (§4.6).
func (h *Hub) applySystemSample(c *Connection, s wire.SystemSample) {
	host := h.Registry.Host(c.HostName)
	if host == nil {
		return
	}
	host.Sample = s
	host.ValuesPresent = true
	if !host.ThresholdsLoaded {
		return
	}

	text, page := alarm.EvaluateHost(s, host.Thresholds)
	host.Edge.CurrentAlarm = text
	host.Edge.CurrentPage = page

	if host.Edge.ShouldNotify() {
		contacts, err := h.Catalog.ServerContacts(host.Name)
		if err != nil {
			h.Logger.Error("catalog: server contacts failed", slog.String("host", host.Name), slog.Any("error", err))
		}
		h.Notifier.NotifyServerContact(host.Name, text, contacts)
		if h.Metrics != nil {
			h.Metrics.AlarmsFiredTotal.WithLabelValues("host").Inc()
		}
	}
	host.Edge.Advance()
}

// applyProcessSample updates a process's record from a fresh sample and
// recomputes its alarm edge (§4.6). The fixed empty-name placeholder
// reply carries no data and is dropped.
func (h *Hub) applyProcessSample(c *Connection, p wire.ProcessSample) {
	if p.Name == "" {
		return
	}
	host := h.Registry.Host(c.HostName)
	if host == nil {
		return
	}
	proc, ok := host.Processes[p.Name]
	if !ok {
		return
	}

	proc.Sample = p
	proc.ValuesPresent = true

	now := time.Now()
	text, page, firstZero := alarm.EvaluateProcess(p.Name, p, proc.Thresholds, proc.FirstZero, now)
	proc.FirstZero = firstZero
	proc.Edge.CurrentAlarm = text
	proc.Edge.CurrentPage = page

	if proc.Edge.ShouldNotify() {
		h.fireProcessAlarm(c, host, proc, text)
		if h.Metrics != nil {
			h.Metrics.AlarmsFiredTotal.WithLabelValues("process").Inc()
		}
	}
	proc.Edge.Advance()
}

// fireProcessAlarm dispatches a process alarm edge: a remediation script
// dispatch to the owning agent when the daemon's catalog row configures
// one, otherwise notify-application-contact (§4.6).
func (h *Hub) fireProcessAlarm(c *Connection, host *registry.Host, proc *registry.Process, alarmText string) {
	contacts, err := h.Catalog.DaemonContacts(host.Name, proc.Name)
	if err != nil {
		h.Logger.Error("catalog: daemon contacts failed",
			slog.String("host", host.Name), slog.String("daemon", proc.Name), slog.Any("error", err))
	}

	if proc.Thresholds.Script == "" {
		h.Notifier.NotifyApplicationContact(host.Name, proc.Name, alarmText, contacts)
		return
	}

	payload, err := alarm.BuildScriptPayload(proc.Name, proc.Sample, proc.Thresholds, contacts)
	if err != nil {
		h.Logger.Error("alarm: script payload encode failed", slog.String("daemon", proc.Name), slog.Any("error", err))
		return
	}
	argv := strings.Fields(proc.Thresholds.Script)
	h.writeOrClose(c, wire.EncodeScriptCommand(argv, payload))
}

func (h *Hub) dispatchClient(c *Connection, line string) {
	verb, rest := wire.ParseRequestVerb(line)
	if h.Metrics != nil {
		h.Metrics.ClientRequestsTotal.WithLabelValues(verb).Inc()
	}
	switch verb {
	case "server":
		h.admit(c, rest)
	case "system":
		h.handleSystemQuery(c, strings.TrimSpace(rest))
	case "process":
		h.handleProcessQuery(c, rest)
	case "message":
		h.handleMessageCommand(c, rest)
	case "messages":
		h.handleMessagesStream(c)
	case "update":
		h.syncAll()
		h.writeOrClose(c, "okay\n")
	default:
		// unrecognised leading token: drop the line (§9 "dynamic
		// field-indexed parsing" redesign).
	}
}

func (h *Hub) handleSystemQuery(c *Connection, hostArg string) {
	if hostArg == "" {
		var any bool
		for _, host := range h.Registry.Hosts() {
			if !host.ValuesPresent {
				continue
			}
			any = true
			h.writeOrClose(c, wire.EncodeHostSummary(hostSummary(host)))
		}
		if !any {
			h.writeOrClose(c, wire.EncodeHostSummary(wire.HostSummary{Error: "no hosts have reported values"}))
		}
		return
	}

	host := h.Registry.Host(hostArg)
	if host == nil {
		h.writeOrClose(c, wire.EncodeHostSummary(wire.HostSummary{Host: hostArg, Error: "unknown host"}))
		return
	}
	if !host.ValuesPresent {
		h.writeOrClose(c, wire.EncodeHostSummary(wire.HostSummary{Host: hostArg, Error: "no samples received yet"}))
		return
	}
	h.writeOrClose(c, wire.EncodeHostSummary(hostSummary(host)))
}

func hostSummary(host *registry.Host) wire.HostSummary {
	return wire.HostSummary{Host: host.Name, Sample: host.Sample, HaveValues: true, Alarm: host.Edge.CurrentAlarm}
}

func (h *Hub) handleProcessQuery(c *Connection, rest string) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		h.writeOrClose(c, wire.EncodeProcessSummary(wire.ProcessSummary{Error: "usage: process <host> <name>"}))
		return
	}
	hostName, procName := fields[0], fields[1]

	host := h.Registry.Host(hostName)
	if host == nil {
		h.writeOrClose(c, wire.EncodeProcessSummary(wire.ProcessSummary{Host: hostName, Error: "unknown host"}))
		return
	}
	proc, ok := host.Processes[procName]
	if !ok || !proc.ValuesPresent {
		h.writeOrClose(c, wire.EncodeProcessSummary(wire.ProcessSummary{Host: hostName, Error: "no samples received yet"}))
		return
	}
	h.writeOrClose(c, wire.EncodeProcessSummary(wire.ProcessSummary{
		Host: hostName, Sample: proc.Sample, Alarm: proc.Edge.CurrentAlarm,
	}))
}

func (h *Hub) handleMessageCommand(c *Connection, rest string) {
	m, err := wire.DecodeMessageCommand(rest)
	if err != nil {
		h.logMalformed(c, err)
		return
	}
	h.Registry.AddMessage(m)
	h.writeOrClose(c, "okay\n")
}

// handleMessagesStream replays every live broadcast message then closes
// the connection (§6, S6).
func (h *Hub) handleMessagesStream(c *Connection) {
	for _, m := range h.Registry.LiveMessages(time.Now()) {
		line := wire.EncodeMessageLine(wire.Message{Type: m.Type, App: m.App, Body: m.Body})
		if err := c.WriteLine(line); err != nil {
			break
		}
	}
	c.ClosePending = true
	h.closed <- c
}

func (h *Hub) writeOrClose(c *Connection, s string) {
	if err := c.WriteLine(s); err != nil {
		c.ClosePending = true
		h.closed <- c
	}
}
