package server

import (
	"bufio"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/7c/centralmon/internal/alarm"
	"github.com/7c/centralmon/internal/catalog"
	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/wire"
)

// fakeCatalog is a no-op catalog double for hub-level tests that don't
// exercise the syncer directly.
type fakeCatalog struct {
	hostThresholds registry.HostThresholds
	daemons        []catalog.DaemonRow
	serverContacts []alarm.Contact
	daemonContacts []alarm.Contact
}

func (f *fakeCatalog) HostThresholds(string) (registry.HostThresholds, error) { return f.hostThresholds, nil }
func (f *fakeCatalog) HostDaemons(string) ([]catalog.DaemonRow, error)        { return f.daemons, nil }
func (f *fakeCatalog) DaemonContacts(string, string) ([]alarm.Contact, error) { return f.daemonContacts, nil }
func (f *fakeCatalog) ServerContacts(string) ([]alarm.Contact, error)         { return f.serverContacts, nil }
func (f *fakeCatalog) Close() error                                          { return nil }

type fakeChat struct{ calls []string }

func (f *fakeChat) Chat(room, message string) (bool, error) {
	f.calls = append(f.calls, message)
	return true, nil
}

type fakeEmail struct{ calls int }

func (f *fakeEmail) Email(from string, to, cc, bcc []string, subject, text, html string, attachments []string) (bool, error) {
	f.calls++
	return true, nil
}

// testConn is a net.Conn double that reports a fixed remote TCP address,
// backed by an in-memory pipe so WriteLine has somewhere to write.
type testConn struct {
	net.Conn
	remote net.Addr
}

func (c *testConn) RemoteAddr() net.Addr { return c.remote }

func newTestConnection(ip string) (*Connection, net.Conn) {
	client, server := net.Pipe()
	tc := &testConn{Conn: server, remote: &net.TCPAddr{IP: net.ParseIP(ip)}}
	return newConnection(tc, socketCleartext), client
}

func newTestHub(cat catalog.Catalog) *Hub {
	reg := registry.New()
	notifier := &alarm.Notifier{
		Chat:   &fakeChat{},
		Email:  &fakeEmail{},
		Logger: slog.Default(),
	}
	h := &Hub{
		Registry: reg,
		Catalog:  cat,
		Syncer:   &catalog.Syncer{Catalog: cat, Logger: slog.Default()},
		Notifier: notifier,
		Logger:   slog.Default(),
		Lookup:   func(name string) ([]net.IP, error) { return []net.IP{net.ParseIP("10.0.0.5")}, nil },
		conns:    make(map[uint64]*Connection),
		lines:    make(chan lineEvent, 64),
		newConn:  make(chan *Connection, 16),
		closed:   make(chan *Connection, 16),
	}
	return h
}

// drainClosed prevents h.closed sends from blocking in tests that never
// run the hub's select loop.
func drainClosed(h *Hub) {
	go func() {
		for range h.closed {
		}
	}()
}

func TestAdmitCleanS1(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, _ := newTestConnection("10.0.0.5")

	h.admit(conn, "A")

	if !conn.IsAgent || conn.HostName != "A" {
		t.Fatalf("expected connection admitted as agent for A, got IsAgent=%v HostName=%q", conn.IsAgent, conn.HostName)
	}
	if h.Registry.Host("A") == nil {
		t.Fatal("expected host record for A")
	}
}

func TestAdmitDeniesDuplicateS2(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)

	first, _ := newTestConnection("10.0.0.5")
	h.admit(first, "A")

	second, _ := newTestConnection("10.0.0.5")
	h.admit(second, "A")

	if second.IsAgent {
		t.Fatal("second admission must not succeed")
	}
	chat := h.Notifier.Chat.(*fakeChat)
	want := "A secondary client request arrived for A. Request has been denied."
	if len(chat.calls) != 1 || chat.calls[0] != want {
		t.Fatalf("got chat calls %v, want [%q]", chat.calls, want)
	}
}

func TestAdmitDeniesIPMismatch(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, _ := newTestConnection("10.0.0.9")

	h.admit(conn, "A")

	if conn.IsAgent {
		t.Fatal("mismatched peer IP must not be admitted")
	}
	if h.Registry.Host("A") != nil {
		t.Fatal("no host record should be created on denial")
	}
}

func TestAdmitIPv4MappedIPv6Matches(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	h.Lookup = func(name string) ([]net.IP, error) { return []net.IP{net.ParseIP("10.0.0.5")}, nil }
	drainClosed(h)
	conn, _ := newTestConnection("::ffff:10.0.0.5")

	h.admit(conn, "A")

	if !conn.IsAgent {
		t.Fatal("IPv4-mapped IPv6 peer matching the resolved IPv4 address must be admitted")
	}
}

func TestApplySystemSampleDiskAlarmS3(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, _ := newTestConnection("10.0.0.5")
	h.admit(conn, "A")
	host := h.Registry.Host("A")
	host.Thresholds = registry.HostThresholds{MaxDiskPercent: 90}
	host.ThresholdsLoaded = true

	sample := wire.SystemSample{Partitions: map[string]int{"/": 91, "/var": 50}}
	h.applySystemSample(conn, sample)

	chat := h.Notifier.Chat.(*fakeChat)
	if len(chat.calls) != 1 {
		t.Fatalf("expected one notification, got %d: %v", len(chat.calls), chat.calls)
	}
	wantAlarm := "/ partition is 91% filled which is more than the maximum 90%"
	if host.Edge.PreviousAlarm != wantAlarm {
		t.Fatalf("got previous alarm %q, want %q", host.Edge.PreviousAlarm, wantAlarm)
	}

	// Repeat sample: no new notification.
	h.applySystemSample(conn, sample)
	if len(chat.calls) != 1 {
		t.Fatalf("repeat sample must not re-notify, got %d calls", len(chat.calls))
	}

	// Sample with no disk alarm, then a fresh breach: must re-notify.
	h.applySystemSample(conn, wire.SystemSample{Partitions: map[string]int{"/": 50}})
	h.applySystemSample(conn, wire.SystemSample{Partitions: map[string]int{"/": 95}})
	if len(chat.calls) != 2 {
		t.Fatalf("expected re-fire after intermediate clear, got %d calls", len(chat.calls))
	}
}

func TestApplyProcessSampleScriptDispatch(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, clientSide := newTestConnection("10.0.0.5")
	h.admit(conn, "A")
	host := h.Registry.Host("A")
	host.Processes["worker"] = &registry.Process{
		Name:       "worker",
		Thresholds: registry.ProcessThresholds{MinProcesses: 1, Script: "/opt/fix.sh"},
	}

	reader := bufio.NewReader(clientSide)
	done := make(chan string, 1)
	go func() {
		line, _ := reader.ReadString('\n')
		json, _ := reader.ReadString('\n')
		done <- line + json
	}()

	h.applyProcessSample(conn, wire.ProcessSample{Name: "worker", Procs: 0})

	select {
	case got := <-done:
		if got == "" {
			t.Fatal("expected a script command pair to be written")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for script dispatch")
	}
}

func TestMessageLifecycleS6(t *testing.T) {
	h := newTestHub(&fakeCatalog{})
	drainClosed(h)
	conn, clientSide := newTestConnection("10.0.0.1")
	reader := bufio.NewReader(clientSide)

	go h.dispatchClient(conn, "message info;MyApp;1000;2000;Service degraded")
	line, _ := reader.ReadString('\n')
	if line != "okay\n" {
		t.Fatalf("got %q, want \"okay\\n\"", line)
	}

	msgs := h.Registry.LiveMessages(time.Unix(1500, 0))
	if len(msgs) != 1 || msgs[0].Body != "Service degraded" {
		t.Fatalf("unexpected live messages: %+v", msgs)
	}

	expired := h.Registry.LiveMessages(time.Unix(2500, 0))
	if len(expired) != 0 {
		t.Fatalf("expected message reaped after end time, got %+v", expired)
	}
}

func TestParseRequestVerbDispatchesMessageCorrectly(t *testing.T) {
	verb, rest := wire.ParseRequestVerb("message info;MyApp;1000;2000;Service degraded\n")
	if verb != "message" {
		t.Fatalf("got verb %q, want \"message\"", verb)
	}
	if rest != "info;MyApp;1000;2000;Service degraded" {
		t.Fatalf("got rest %q", rest)
	}
}
