// Package server implements the aggregator listener (C4) and connection
// hub (C5): accepting inbound agent uplinks and query/control clients on
// one multiplexed port, admission control, and the event loop that drives
// the 30-second agent pull cadence and dispatches wire records into the
// host registry and alarm evaluator.
//
// The original design (§5) is a single-threaded readiness-polling loop.
// Idiomatic Go expresses the same ownership guarantee — the registry is
// mutated from exactly one goroutine, so no locking is needed — with a
// channel fan-in instead of raw socket polling: one reader goroutine per
// connection feeds completed lines into the hub's line channel, and the
// hub's Run loop is the sole consumer. See DESIGN.md "connection hub
// concurrency" for the full rationale.
package server

import (
	"log/slog"
	"net"
	"time"

	"github.com/7c/centralmon/internal/alarm"
	"github.com/7c/centralmon/internal/catalog"
	"github.com/7c/centralmon/internal/metrics"
	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/wire"
)

// pullCadence is the period after which an agent connection with no
// recent emission is sent a fresh system/process pull (§4.4 step 6).
const pullCadence = 30 * time.Second

// pollInterval is how often the hub checks pull cadence and reaps
// expired messages, mirroring the original's 250ms readiness wait.
const pollInterval = 250 * time.Millisecond

// LookupIP resolves a host name to its IP set for admission control.
// Overridable in tests; defaults to net.LookupIP.
type LookupIP func(name string) ([]net.IP, error)

// Hub owns the host registry and drives the aggregator's event loop.
type Hub struct {
	Registry *registry.Registry
	Catalog  catalog.Catalog
	Syncer   *catalog.Syncer
	Notifier *alarm.Notifier
	Logger   *slog.Logger
	Lookup   LookupIP
	Metrics  *metrics.Metrics

	listener *Listener

	conns   map[uint64]*Connection
	lines   chan lineEvent
	newConn chan *Connection
	closed  chan *Connection
}

// NewHub creates a Hub bound to listener. Call Run to start the event
// loop; it blocks until the listener is closed.
func NewHub(listener *Listener, reg *registry.Registry, cat catalog.Catalog, notifier *alarm.Notifier, logger *slog.Logger) *Hub {
	return &Hub{
		Registry: reg,
		Catalog:  cat,
		Syncer:   &catalog.Syncer{Catalog: cat, Logger: logger},
		Notifier: notifier,
		Logger:   logger,
		Lookup:   net.LookupIP,
		listener: listener,
		conns:    make(map[uint64]*Connection),
		lines:    make(chan lineEvent, 64),
		newConn:  make(chan *Connection, 16),
		closed:   make(chan *Connection, 16),
	}
}

// Run accepts connections and drives the event loop until the listener
// is closed. Accept failures are fatal (§4.3/§7): the loop logs and
// returns.
func (h *Hub) Run() error {
	go h.acceptLoop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case c := <-h.newConn:
			h.conns[c.ID] = c

		case ev := <-h.lines:
			ev.conn.LastActivity = time.Now()
			h.dispatch(ev.conn, ev.line)

		case c := <-h.closed:
			h.teardown(c)

		case <-ticker.C:
			h.pullDueAgents()
			h.Registry.LiveMessages(time.Now()) // reap expired messages
		}
	}
}

func (h *Hub) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			h.Logger.Error("server: accept failed", slog.Any("error", err))
			return
		}
		go conn.readLoop(h.lines, h.closed)
		h.newConn <- conn
	}
}

// teardown removes a closed connection, releasing its host record if it
// was an agent (§3 "a host is removed from the registry exactly when its
// agent connection closes").
func (h *Hub) teardown(c *Connection) {
	c.Close()
	delete(h.conns, c.ID)
	if c.IsAgent && c.HostName != "" {
		h.Registry.Release(c.HostName)
		h.Logger.Info("server: host released", slog.String("host", c.HostName))
		h.reportHostCount()
	}
}

// AttachMetrics wires m into the hub and its syncer, enabling the
// Prometheus counters and histograms described in internal/metrics.
func (h *Hub) AttachMetrics(m *metrics.Metrics) {
	h.Metrics = m
	h.Syncer.Metrics = m
}

func (h *Hub) reportHostCount() {
	if h.Metrics != nil {
		h.Metrics.HostsRegistered.Set(float64(len(h.Registry.Hosts())))
	}
}

// syncHost runs a single-host threshold sync, observing its latency.
func (h *Hub) syncHost(host *registry.Host) {
	start := time.Now()
	h.Syncer.SyncHost(host)
	if h.Metrics != nil {
		h.Metrics.CatalogSyncLatency.Observe(time.Since(start).Seconds())
	}
}

// syncAll runs a threshold sync for every registered host, observing
// total latency.
func (h *Hub) syncAll() {
	start := time.Now()
	h.Syncer.SyncAll(h.Registry)
	if h.Metrics != nil {
		h.Metrics.CatalogSyncLatency.Observe(time.Since(start).Seconds())
	}
}

// pullDueAgents appends a system/process request pair to every agent
// connection whose last emission is more than pullCadence in the past
// (§4.4 step 6).
func (h *Hub) pullDueAgents() {
	now := time.Now()
	for _, c := range h.conns {
		if !c.IsAgent || c.HostName == "" {
			continue
		}
		host := h.Registry.Host(c.HostName)
		if host == nil || !host.DueForPull(now) {
			continue
		}

		if err := c.WriteLine(wire.EncodeSystemRequest()); err != nil {
			c.ClosePending = true
			h.closed <- c
			continue
		}
		for name := range host.Processes {
			if err := c.WriteLine(wire.EncodeProcessRequest(name)); err != nil {
				c.ClosePending = true
				h.closed <- c
				break
			}
		}
		host.LastEmission = now
	}
}
