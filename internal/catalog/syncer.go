package catalog

import (
	"log/slog"

	"github.com/7c/centralmon/internal/metrics"
	"github.com/7c/centralmon/internal/registry"
)

// Syncer runs the threshold syncer (C7): on a new-agent admission or an
// operator "update", it reconciles every host's thresholds and process
// table against the catalog (§4.5). Sync is invoked inline on the hub's
// event-loop goroutine rather than via a cooperative task — see
// DESIGN.md "catalog sync concurrency" for the rationale.
type Syncer struct {
	Catalog Catalog
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// SyncAll reconciles every host currently in reg.
func (s *Syncer) SyncAll(reg *registry.Registry) {
	for _, h := range reg.Hosts() {
		s.SyncHost(h)
	}
}

// SyncHost reconciles a single host's thresholds and process table.
// Catalog failures are logged and leave the affected state at its
// last-loaded values; they never abort the sync of other hosts (§7
// "catalog query failure").
func (s *Syncer) SyncHost(h *registry.Host) {
	th, err := s.Catalog.HostThresholds(h.Name)
	if err != nil {
		s.logf("host thresholds", h.Name, err)
	} else {
		h.Thresholds = th
		h.ThresholdsLoaded = true
	}

	rows, err := s.Catalog.HostDaemons(h.Name)
	if err != nil {
		s.logf("host daemons", h.Name, err)
		return
	}

	for _, p := range h.Processes {
		p.Checking = true
	}

	for _, row := range rows {
		target := row.Thresholds()

		existing, ok := h.Processes[row.Daemon]
		switch {
		case !ok:
			h.Processes[row.Daemon] = &registry.Process{Name: row.Daemon, Thresholds: target}

		case existing.Thresholds.Equal(target):
			existing.Checking = false

		default:
			// A threshold change is treated as a fresh observation: drop
			// accumulated sample/edge state and insert the target, by design.
			h.Processes[row.Daemon] = &registry.Process{Name: row.Daemon, Thresholds: target}
		}
	}

	for name, p := range h.Processes {
		if p.Checking {
			delete(h.Processes, name)
		}
	}
}

func (s *Syncer) logf(what, host string, err error) {
	if s.Metrics != nil {
		s.Metrics.CatalogSyncErrors.Inc()
	}
	if s.Logger == nil {
		return
	}
	s.Logger.Error("catalog: sync failed", slog.String("query", what), slog.String("host", host), slog.Any("error", err))
}
