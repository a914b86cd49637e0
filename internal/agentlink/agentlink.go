// Package agentlink implements the agent's side of the long-lived uplink to
// the central aggregator: an outbound mTLS connection that resolves the
// central host, reconnects on failure or disconnect, and answers the
// aggregator's request lines with samples from internal/collector.
package agentlink

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/7c/centralmon/internal/collector"
	"github.com/7c/centralmon/internal/scriptexec"
	"github.com/7c/centralmon/internal/wire"
)

const defaultRetryInterval = 300 * time.Second

// Config holds the agent uplink's connection and identity parameters.
type Config struct {
	// CentralAddr is the "host:port" of the aggregator's listening socket.
	CentralAddr string

	// HostName is the name this agent identifies itself as in the first
	// "server <host-name>" application line. Defaults to os.Hostname().
	HostName string

	CertPath string
	KeyPath  string
	CAPath   string

	// RetryInterval overrides the reconnect sleep. Defaults to 300 seconds.
	RetryInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.RetryInterval == 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.HostName == "" {
		if h, err := os.Hostname(); err == nil {
			c.HostName = h
		}
	}
}

// Agent maintains the single outbound connection to the aggregator and
// answers its request lines.
type Agent struct {
	cfg       Config
	collector collector.Collector
	logger    *slog.Logger
	tlsConfig *tls.Config

	stop chan struct{}
}

// New creates an Agent. Call Run to start the reconnect loop; it blocks
// until Stop is called.
func New(cfg Config, coll collector.Collector, logger *slog.Logger) *Agent {
	cfg.applyDefaults()
	return &Agent{cfg: cfg, collector: coll, logger: logger, stop: make(chan struct{})}
}

// Stop ends the reconnect loop after the current connection attempt
// returns.
func (a *Agent) Stop() { close(a.stop) }

// Run resolves, connects, and serves the aggregator's request lines.
// On failure or disconnect it sleeps RetryInterval and tries again,
// matching the agent uplink's fixed-interval reconnect loop (§4.2).
func (a *Agent) Run() error {
	creds, err := a.loadTLSConfig()
	if err != nil {
		return fmt.Errorf("agentlink: %w", err)
	}
	a.tlsConfig = creds

	for {
		select {
		case <-a.stop:
			return nil
		default:
		}

		a.logger.Info("agentlink: connecting", slog.String("addr", a.cfg.CentralAddr))
		if err := a.connect(); err != nil {
			a.logger.Warn("agentlink: connection ended", slog.Any("error", err))
		}

		select {
		case <-a.stop:
			return nil
		case <-time.After(a.cfg.RetryInterval):
		}
	}
}

func (a *Agent) connect() error {
	conn, err := tls.Dial("tcp", a.cfg.CentralAddr, a.tlsConfig)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.cfg.CentralAddr, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "server %s\n", a.cfg.HostName); err != nil {
		return fmt.Errorf("send server line: %w", err)
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}

		if err := a.handleLine(conn, reader, line); err != nil {
			a.logger.Warn("agentlink: request handling error", slog.Any("error", err))
		}
	}
}

func (a *Agent) handleLine(conn net.Conn, reader *bufio.Reader, line string) error {
	verb, rest := wire.ParseRequestVerb(line)

	switch verb {
	case "system":
		sample, err := a.collector.CollectSystem()
		if err != nil {
			sample = wire.SystemSample{}
		}
		_, err = conn.Write([]byte(wire.EncodeSystemResponse(sample)))
		return err

	case "process":
		name := strings.TrimSpace(rest)
		sample, err := a.collector.CollectProcess(name)
		if err != nil {
			sample = wire.ProcessSample{Name: name}
		}
		_, err = conn.Write([]byte(wire.EncodeProcessResponse(sample)))
		return err

	case "script":
		payload, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read script payload: %w", err)
		}
		argv := strings.Fields(rest)
		go scriptexec.Run(argv, []byte(payload), a.logger)
		return nil

	default:
		a.logger.Debug("agentlink: unrecognised request verb", slog.String("verb", verb))
		return nil
	}
}

func (a *Agent) loadTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(a.cfg.CertPath, a.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load agent cert/key (%s, %s): %w", a.cfg.CertPath, a.cfg.KeyPath, err)
	}

	caPEM, err := os.ReadFile(a.cfg.CAPath)
	if err != nil {
		return nil, fmt.Errorf("read CA cert %s: %w", a.cfg.CAPath, err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("parse CA cert from %s: no certificates found", a.cfg.CAPath)
	}

	serverName, _, err := net.SplitHostPort(a.cfg.CentralAddr)
	if err != nil {
		serverName = a.cfg.CentralAddr
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
