package server

import (
	"bufio"
	"strings"
	"testing"

	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/wire"
)

func TestApplyProcessSampleOwnerMismatchS5(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, clientSide := newTestConnection("10.0.0.5")
	h.admit(conn, "A")
	host := h.Registry.Host("A")
	host.Processes["web"] = &registry.Process{
		Name:       "web",
		Thresholds: registry.ProcessThresholds{Owner: "nobody"},
	}

	done := make(chan struct{})
	go func() {
		bufio.NewReader(clientSide).ReadString('\n')
		close(done)
	}()

	h.applyProcessSample(conn, wire.ProcessSample{
		Name: "web", Start: "2024-01-01 12:00 cst",
		Owners: map[string]int{"root": 2}, Procs: 2,
	})

	want := "web is not running under the required nobody account"
	if host.Processes["web"].Edge.PreviousAlarm != want {
		t.Fatalf("got alarm %q, want %q", host.Processes["web"].Edge.PreviousAlarm, want)
	}
}

func TestHandleSystemQueryNoValues(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, clientSide := newTestConnection("10.0.0.1")
	reader := bufio.NewReader(clientSide)

	go h.handleSystemQuery(conn, "")
	line, _ := reader.ReadString('\n')
	fields := strings.Split(strings.TrimSuffix(line, "\n"), ";")
	if len(fields) != 14 {
		t.Fatalf("got %d fields, want 14: %q", len(fields), line)
	}
}

func TestHandleSystemQueryUnknownHost(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, clientSide := newTestConnection("10.0.0.1")
	reader := bufio.NewReader(clientSide)

	go h.handleSystemQuery(conn, "ghost")
	line, _ := reader.ReadString('\n')
	if line == "" {
		t.Fatal("expected an error-padded reply line")
	}
}

func TestHandleProcessQueryMissingArgs(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, clientSide := newTestConnection("10.0.0.1")
	reader := bufio.NewReader(clientSide)

	go h.handleProcessQuery(conn, "onlyhost")
	line, _ := reader.ReadString('\n')
	if line == "" {
		t.Fatal("expected an error-padded reply line for missing args")
	}
}
