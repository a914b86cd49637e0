package server

import "log/slog"

// admit implements the admission handshake of §4.7: resolve name's IP
// set and compare against the connection's peer IP. A match against an
// unbound host promotes the connection to agent; anything else is
// denied. Unlike the original, the IPv6 peer case is not given a
// shortcut — net.IP.Equal already normalises an IPv4-mapped IPv6 form
// against its plain IPv4 counterpart, so a single forward-lookup
// comparison handles both address families (§9 "IPv6 admission
// shortcut", removed by design — see DESIGN.md).
func (h *Hub) admit(c *Connection, name string) {
	if name == "" {
		h.denyAdmission(c, name)
		return
	}

	peer := c.RemoteIP()
	if peer == nil {
		h.denyAdmission(c, name)
		return
	}

	ips, err := h.Lookup(name)
	if err != nil {
		h.Logger.Error("server: admission lookup failed", slog.String("host", name), slog.Any("error", err))
		h.denyAdmission(c, name)
		return
	}

	for _, ip := range ips {
		if ip.Equal(peer) {
			h.bind(c, name)
			return
		}
	}
	h.denyAdmission(c, name)
}

// bind admits the connection as the agent for name, then runs a
// threshold sync for it immediately (§4.5's "new agent admitted"
// trigger).
func (h *Hub) bind(c *Connection, name string) {
	host, err := h.Registry.Bind(name)
	if err != nil {
		h.denyAdmission(c, name)
		return
	}
	c.IsAgent = true
	c.HostName = name
	h.syncHost(host)
	h.Logger.Info("server: host admitted", slog.String("host", name))
	h.reportHostCount()
	if h.Metrics != nil {
		h.Metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	}
}

// denyAdmission fires the deny notification (chat + operator email) and
// closes the connection (§4.7, §7 "admission mismatch").
func (h *Hub) denyAdmission(c *Connection, name string) {
	h.Notifier.DenyAdmission(name)
	c.ClosePending = true
	h.closed <- c
	if h.Metrics != nil {
		h.Metrics.AdmissionsTotal.WithLabelValues("denied").Inc()
	}
}
