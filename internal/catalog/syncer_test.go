package catalog

import (
	"testing"

	"github.com/7c/centralmon/internal/alarm"
	"github.com/7c/centralmon/internal/registry"
)

type fakeCatalog struct {
	thresholds registry.HostThresholds
	daemons    []DaemonRow
}

func (f *fakeCatalog) HostThresholds(hostName string) (registry.HostThresholds, error) {
	return f.thresholds, nil
}
func (f *fakeCatalog) HostDaemons(hostName string) ([]DaemonRow, error) { return f.daemons, nil }
func (f *fakeCatalog) DaemonContacts(hostName, daemon string) ([]alarm.Contact, error) {
	return nil, nil
}
func (f *fakeCatalog) ServerContacts(hostName string) ([]alarm.Contact, error) { return nil, nil }
func (f *fakeCatalog) Close() error                                           { return nil }

func TestSyncHostInsertsNewDaemon(t *testing.T) {
	cat := &fakeCatalog{daemons: []DaemonRow{{Daemon: "httpd", CatalogID: 1, MaxProcesses: 10}}}
	syncer := &Syncer{Catalog: cat}
	h := registry.NewHost("A")

	syncer.SyncHost(h)

	if _, ok := h.Processes["httpd"]; !ok {
		t.Fatal("expected httpd to be inserted")
	}
}

func TestSyncHostKeepsUnchangedRecord(t *testing.T) {
	cat := &fakeCatalog{daemons: []DaemonRow{{Daemon: "httpd", CatalogID: 1, MaxProcesses: 10}}}
	syncer := &Syncer{Catalog: cat}
	h := registry.NewHost("A")
	syncer.SyncHost(h)

	h.Processes["httpd"].Sample.Procs = 5 // accumulated sample state
	syncer.SyncHost(h)

	if h.Processes["httpd"].Sample.Procs != 5 {
		t.Fatal("unchanged thresholds must preserve accumulated sample state")
	}
}

func TestSyncHostDropsOnThresholdChange(t *testing.T) {
	cat := &fakeCatalog{daemons: []DaemonRow{{Daemon: "httpd", CatalogID: 1, MaxProcesses: 10}}}
	syncer := &Syncer{Catalog: cat}
	h := registry.NewHost("A")
	syncer.SyncHost(h)
	h.Processes["httpd"].Sample.Procs = 5

	cat.daemons[0].MaxProcesses = 20
	syncer.SyncHost(h)

	if h.Processes["httpd"].Sample.Procs != 0 {
		t.Fatal("threshold change must drop accumulated sample state")
	}
	if h.Processes["httpd"].Thresholds.MaxProcesses != 20 {
		t.Fatal("threshold change must apply new bounds")
	}
}

func TestSyncHostDropsRemovedDaemon(t *testing.T) {
	cat := &fakeCatalog{daemons: []DaemonRow{{Daemon: "httpd", CatalogID: 1}}}
	syncer := &Syncer{Catalog: cat}
	h := registry.NewHost("A")
	syncer.SyncHost(h)

	cat.daemons = nil
	syncer.SyncHost(h)

	if len(h.Processes) != 0 {
		t.Fatalf("daemon removed from catalog should be dropped, got %+v", h.Processes)
	}
}

func TestSyncHostIdempotentAcrossReruns(t *testing.T) {
	cat := &fakeCatalog{daemons: []DaemonRow{
		{Daemon: "httpd", CatalogID: 1, MaxProcesses: 10},
		{Daemon: "worker", CatalogID: 2, MinProcesses: 1},
	}}
	syncer := &Syncer{Catalog: cat}
	h := registry.NewHost("A")
	syncer.SyncHost(h)

	before := make(map[string]registry.ProcessThresholds, len(h.Processes))
	for name, p := range h.Processes {
		before[name] = p.Thresholds
	}

	syncer.SyncHost(h)

	if len(h.Processes) != len(before) {
		t.Fatalf("process set changed across idempotent rerun: got %d, want %d", len(h.Processes), len(before))
	}
	for name, th := range before {
		if !h.Processes[name].Thresholds.Equal(th) {
			t.Fatalf("thresholds for %s changed across idempotent rerun", name)
		}
	}
}
