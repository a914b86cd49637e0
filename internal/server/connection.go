package server

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// socketType is the connection-record classification of §3's Connection
// record: unknown until the hub sniffs the leading bytes.
type socketType int

const (
	socketUnknown socketType = iota
	socketCleartext
	socketEncrypted
)

var nextConnID uint64

// Connection is the aggregator-side state for one accepted socket (§3).
// Reads happen on a dedicated per-connection goroutine (readLoop); all
// other fields are owned exclusively by the hub's single consumer
// goroutine once the connection is registered, so no locking is needed
// there either — see DESIGN.md "connection hub concurrency".
type Connection struct {
	ID   uint64
	conn net.Conn

	SocketType socketType
	IsAgent    bool
	HostName   string

	SessionStart time.Time
	LastActivity time.Time
	LastEmission time.Time

	ClosePending bool

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConnection(conn net.Conn, st socketType) *Connection {
	now := time.Now()
	return &Connection{
		ID:           atomic.AddUint64(&nextConnID, 1),
		conn:         conn,
		SocketType:   st,
		SessionStart: now,
		LastActivity: now,
	}
}

// WriteLine writes s verbatim to the connection's socket. Concurrent
// calls are serialised by writeMu; in the aggregator the hub's event-loop
// goroutine is the only writer (readLoop never writes).
func (c *Connection) WriteLine(s string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := io.WriteString(c.conn, s)
	return err
}

// RemoteIP returns the connection's peer IP address.
func (c *Connection) RemoteIP() net.IP {
	addr, ok := c.conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return nil
	}
	return addr.IP
}

// Close tears down the underlying socket. Safe to call more than once.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// readLoop reads newline-terminated lines from the connection and fans
// them into the hub's line channel, preserving per-connection FIFO order
// (§5 "ordering guarantees"). It runs on its own goroutine so the hub's
// single consumer goroutine never blocks on a slow or stalled peer.
func (c *Connection) readLoop(lines chan<- lineEvent, closed chan<- *Connection) {
	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines <- lineEvent{conn: c, line: line}
		}
		if err != nil {
			closed <- c
			return
		}
	}
}

type lineEvent struct {
	conn *Connection
	line string
}
