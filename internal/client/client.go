// Package client implements centralmon-ctl's query/control connection to
// the aggregator's multiplexed port: a short-lived cleartext TCP
// connection that sends one request line and reads back its reply (§6).
package client

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// idleTimeout bounds how long Query waits for another line once a reply
// has started arriving, for verbs the aggregator answers with a variable
// number of lines ("system" with no host arg) and never closes itself.
const idleTimeout = 750 * time.Millisecond

// Client is one short-lived connection to the aggregator's control port.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial opens a cleartext connection to addr ("host:port").
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Query sends line (with a trailing newline appended if missing) and
// collects reply lines until the aggregator closes the connection or
// idleTimeout elapses with no further line arriving.
func (c *Client) Query(line string) ([]string, error) {
	if err := c.send(line); err != nil {
		return nil, err
	}

	var lines []string
	for {
		c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		reply, err := c.reader.ReadString('\n')
		if reply != "" {
			lines = append(lines, reply)
		}
		if err != nil {
			if isTimeout(err) {
				break
			}
			return lines, nil // EOF: aggregator closed the connection (e.g. "messages")
		}
	}
	c.conn.SetReadDeadline(time.Time{})
	return lines, nil
}

// QueryOne sends line and returns its single reply line.
func (c *Client) QueryOne(line string) (string, error) {
	lines, err := c.Query(line)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("client: no reply to %q", line)
	}
	return lines[0], nil
}

func (c *Client) send(line string) error {
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}
	_, err := c.conn.Write([]byte(line))
	return err
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
