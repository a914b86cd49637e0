package server

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
)

// tlsHandshakeByte is the leading byte of a TLS record carrying a
// handshake message (content type 0x16), used to sniff TLS vs cleartext
// on a connection whose socket-type is still unknown (§4.3).
const tlsHandshakeByte = 0x16

// Listener binds the aggregator's single multiplexed port: an IPv6
// wildcard stream socket with address reuse, accepting both inbound
// agent uplinks and short-lived query/control clients (§4.3, §6).
type Listener struct {
	ln        net.Listener
	tlsConfig *tls.Config
}

// Listen binds addr ("[::]:4636" for the IPv6 wildcard with IPv4-mapped
// acceptance) and returns a Listener ready to Accept. tlsConfig is used
// for the server-side handshake on connections sniffed as encrypted.
func Listen(addr string, tlsConfig *tls.Config) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, tlsConfig: tlsConfig}, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Addr returns the listener's bound address, useful when binding to
// port 0 for a test or ephemeral metrics companion.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for one inbound connection, classifies it as TLS or
// cleartext by sniffing its leading byte, completes a server-side TLS
// handshake for the encrypted branch, and returns the resulting
// Connection. A classification or handshake failure is reported as an
// error with the raw net.Conn already closed; the caller (§4.3) marks
// such sockets close-pending rather than treating accept itself as
// fatal.
func (l *Listener) Accept() (*Connection, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}

	buffered := bufio.NewReader(raw)
	peek, err := buffered.Peek(1)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("server: classify connection: %w", err)
	}

	sniffed := &sniffedConn{Conn: raw, r: buffered}

	if peek[0] == tlsHandshakeByte {
		tlsConn := tls.Server(sniffed, l.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			raw.Close()
			return nil, fmt.Errorf("server: TLS handshake: %w", err)
		}
		return newConnection(tlsConn, socketEncrypted), nil
	}

	return newConnection(sniffed, socketCleartext), nil
}

// sniffedConn wraps a net.Conn whose leading bytes have already been
// peeked into a buffered reader, so the peeked bytes are not lost to the
// next reader (crypto/tls or the connection's own line reader).
type sniffedConn struct {
	net.Conn
	r *bufio.Reader
}

func (s *sniffedConn) Read(b []byte) (int, error) { return s.r.Read(b) }
