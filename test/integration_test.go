// Package test runs the aggregator's connection hub against a fake agent
// and a fake catalog, in-process, exercising the admission-to-query path
// end to end without standing up TLS or a real database.
package test

import (
	"bufio"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/7c/centralmon/internal/alarm"
	"github.com/7c/centralmon/internal/catalog"
	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/server"
	"github.com/7c/centralmon/internal/wire"
)

type fakeCatalog struct {
	thresholds registry.HostThresholds
}

func (c *fakeCatalog) HostThresholds(string) (registry.HostThresholds, error) { return c.thresholds, nil }
func (c *fakeCatalog) HostDaemons(string) ([]catalog.DaemonRow, error)        { return nil, nil }
func (c *fakeCatalog) DaemonContacts(string, string) ([]alarm.Contact, error) { return nil, nil }
func (c *fakeCatalog) ServerContacts(string) ([]alarm.Contact, error)         { return nil, nil }
func (c *fakeCatalog) Close() error                                          { return nil }

// startAggregator binds a cleartext listener on an ephemeral port and
// runs its hub in the background, returning the address to dial.
func startAggregator(t *testing.T, cat catalog.Catalog) string {
	t.Helper()

	ln, err := server.Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	notifier := &alarm.Notifier{}
	hub := server.NewHub(ln, registry.New(), cat, notifier, testLogger())
	// Every fake agent in this suite dials from loopback; admission's
	// forward lookup is stubbed to match it regardless of host name.
	hub.Lookup = func(string) ([]net.IP, error) { return []net.IP{net.ParseIP("127.0.0.1")}, nil }

	go hub.Run()
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestAdmissionAndSystemQuery drives a fake agent through the "server
// <host>" handshake, supplies one system sample, and checks that a ctl
// client's "system <host>" query reports it back.
func TestAdmissionAndSystemQuery(t *testing.T) {
	addr := startAggregator(t, &fakeCatalog{thresholds: registry.HostThresholds{MaxCPUPercent: 100, MaxDiskPercent: 100, MaxMainPercent: 100, MaxSwapPercent: 100, MaxProcesses: 100000}})

	agent := dial(t, addr)
	if _, err := agent.Write([]byte("server web-1\n")); err != nil {
		t.Fatalf("send handshake: %v", err)
	}

	agent.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(agent)
	requestLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read system pull: %v", err)
	}
	if requestLine != "system\n" {
		t.Fatalf("got request %q, want \"system\\n\"", requestLine)
	}

	sample := wire.SystemSample{OS: "linux", Release: "6.1", CPUs: 4, Procs: 120, CPUPercent: 12.5, MainUsed: 1024, MainTotal: 4096}
	if _, err := agent.Write([]byte(wire.EncodeSystemResponse(sample))); err != nil {
		t.Fatalf("send system sample: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // let the hub's event loop dispatch the sample

	ctl := dial(t, addr)
	if _, err := ctl.Write([]byte("system web-1\n")); err != nil {
		t.Fatalf("send query: %v", err)
	}
	line, err := bufio.NewReader(ctl).ReadString('\n')
	if err != nil {
		t.Fatalf("read query reply: %v", err)
	}

	summary, err := wire.DecodeHostSummary(line)
	if err != nil {
		t.Fatalf("decode host summary: %v", err)
	}
	if summary.Host != "web-1" || !summary.HaveValues {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Sample.CPUs != 4 || summary.Sample.Procs != 120 {
		t.Fatalf("sample not round-tripped: %+v", summary.Sample)
	}
}

// TestDuplicateAdmissionDenied confirms the second connection claiming an
// already-bound host name is rejected rather than silently replacing the
// first (§4.7, S2).
func TestDuplicateAdmissionDenied(t *testing.T) {
	addr := startAggregator(t, &fakeCatalog{})

	first := dial(t, addr)
	if _, err := first.Write([]byte("server db-1\n")); err != nil {
		t.Fatalf("send first handshake: %v", err)
	}
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	firstReader := bufio.NewReader(first)
	if _, err := firstReader.ReadString('\n'); err != nil {
		t.Fatalf("read system pull on first connection: %v", err)
	}

	second := dial(t, addr)
	if _, err := second.Write([]byte("server db-1\n")); err != nil {
		t.Fatalf("send second handshake: %v", err)
	}
	second.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := second.Read(buf); err == nil {
		t.Fatal("expected the second connection to be closed, got data instead")
	}
}

// TestMessageBroadcastAndStream exercises the "message" registration verb
// followed by a "messages" stream read on a separate connection.
func TestMessageBroadcastAndStream(t *testing.T) {
	addr := startAggregator(t, &fakeCatalog{})

	poster := dial(t, addr)
	now := time.Now()
	cmd := "message info;deploy;" + strconv.FormatInt(now.Unix(), 10) + ";" + strconv.FormatInt(now.Add(time.Hour).Unix(), 10) + ";rolling restart in progress\n"
	if _, err := poster.Write([]byte(cmd)); err != nil {
		t.Fatalf("send message: %v", err)
	}
	ack, err := bufio.NewReader(poster).ReadString('\n')
	if err != nil || ack != "okay\n" {
		t.Fatalf("unexpected ack %q (err %v)", ack, err)
	}

	reader := dial(t, addr)
	if _, err := reader.Write([]byte("messages\n")); err != nil {
		t.Fatalf("send messages: %v", err)
	}
	line, err := bufio.NewReader(reader).ReadString('\n')
	if err != nil {
		t.Fatalf("read message stream: %v", err)
	}
	m, err := wire.DecodeMessageLine(line)
	if err != nil {
		t.Fatalf("decode message line: %v", err)
	}
	if m.Type != "info" || m.App != "deploy" || m.Body != "rolling restart in progress" {
		t.Fatalf("unexpected message: %+v", m)
	}
}
