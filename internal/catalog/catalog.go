// Package catalog implements the threshold syncer (C7): a read-only
// relational store of host identities, thresholds, and contact persons,
// plus the reconciliation algorithm that keeps a host's process table in
// sync with it (§4.5).
package catalog

import (
	"github.com/7c/centralmon/internal/alarm"
	"github.com/7c/centralmon/internal/registry"
)

// DaemonRow is one row of the per-host monitored-daemon list (§6 catalog
// interface item 2).
type DaemonRow struct {
	Daemon       string
	Delay        int
	MinProcesses int
	MaxProcesses int
	MinImageKB   uint64
	MaxImageKB   uint64
	MinResidentKB uint64
	MaxResidentKB uint64
	Owner        string
	Script       string
	CatalogID    int64
}

// Thresholds converts a DaemonRow into registry.ProcessThresholds.
func (r DaemonRow) Thresholds() registry.ProcessThresholds {
	return registry.ProcessThresholds{
		CatalogID:     r.CatalogID,
		MinProcesses:  r.MinProcesses,
		MaxProcesses:  r.MaxProcesses,
		MinImageKB:    r.MinImageKB,
		MaxImageKB:    r.MaxImageKB,
		MinResidentKB: r.MinResidentKB,
		MaxResidentKB: r.MaxResidentKB,
		Owner:         r.Owner,
		Script:        r.Script,
		DelaySeconds:  r.Delay,
	}
}

// Catalog is the read-only interface the aggregator core consumes (§6).
// All five logical queries are parameterised; no write path exists.
type Catalog interface {
	// HostThresholds returns the per-host bounds keyed by host name (query 1).
	HostThresholds(hostName string) (registry.HostThresholds, error)

	// HostDaemons returns every monitored daemon configured for hostName,
	// with all threshold fields (query 2).
	HostDaemons(hostName string) ([]DaemonRow, error)

	// DaemonContacts resolves primary/backup/contact persons for daemon on
	// hostName (queries 3 and 4: contact resolution plus host scoping).
	DaemonContacts(hostName, daemon string) ([]alarm.Contact, error)

	// ServerContacts resolves server-level admin/contact persons for
	// hostName, with their on-notify flag (query 5).
	ServerContacts(hostName string) ([]alarm.Contact, error)

	// Close releases the underlying connection pool.
	Close() error
}
