// Command centralmon-aggregator is the central fleet monitor (§4): it
// accepts agent uplinks and query/control clients on one multiplexed
// port, maintains the host registry, evaluates alarms against
// catalog-derived thresholds, and fires notifications on alarm edges.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/7c/centralmon/internal/alarm"
	"github.com/7c/centralmon/internal/catalog"
	"github.com/7c/centralmon/internal/config"
	"github.com/7c/centralmon/internal/logwriter"
	"github.com/7c/centralmon/internal/metrics"
	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/server"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	configFlag := flag.String("config", "", "path to centralmon.config.json")
	listenAddr := flag.String("listen", "", "multiplexed agent/client listen address (overrides config)")
	certPath := flag.String("cert", "", "aggregator TLS certificate path (overrides config)")
	keyPath := flag.String("key", "", "aggregator TLS key path (overrides config)")
	caPath := flag.String("ca", "", "CA certificate path for verifying agent client certs (overrides config)")
	catalogDSN := flag.String("catalog", "", "catalog database DSN (overrides config)")
	operatorEmail := flag.String("operator-email", "", "default operator email for fallback notifications (overrides config)")
	chatRoom := flag.String("chat-room", "", "chat room name for alarm broadcasts (overrides config)")
	daemonize := flag.Bool("daemon", false, "detach into the background after starting")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	home := config.Home()
	os.MkdirAll(home, 0755)

	result, err := config.Load(home, *configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	aggCfg, err := result.Config.Aggregator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: centralmon.config.json: %s\n", err)
		os.Exit(1)
	}

	applyFlagOverride(&aggCfg.ListenAddr, *listenAddr)
	applyFlagOverride(&aggCfg.TLSCert, *certPath)
	applyFlagOverride(&aggCfg.TLSKey, *keyPath)
	applyFlagOverride(&aggCfg.TLSCA, *caPath)
	applyFlagOverride(&aggCfg.CatalogDSN, *catalogDSN)
	applyFlagOverride(&aggCfg.OperatorEmail, *operatorEmail)
	applyFlagOverride(&aggCfg.ChatRoom, *chatRoom)
	if aggCfg.ListenAddr == "" {
		aggCfg.ListenAddr = "[::]:4636"
	}
	if *daemonize {
		aggCfg.Daemonize = true
	}

	if aggCfg.Daemonize && os.Getenv("CENTRALMON_AGGREGATOR_CHILD") == "" {
		reexecDetached(home)
		return
	}

	logger := newLogger(home, "aggregator.log", *debug)

	tlsConfig, err := loadServerTLSConfig(aggCfg.TLSCert, aggCfg.TLSKey, aggCfg.TLSCA)
	if err != nil {
		logger.Error("cannot load TLS material", slog.Any("error", err))
		os.Exit(1)
	}

	cat, err := catalog.Open(aggCfg.CatalogDSN)
	if err != nil {
		logger.Error("cannot open catalog", slog.Any("error", err))
		os.Exit(1)
	}
	defer cat.Close()

	notifier := &alarm.Notifier{
		Logger:        logger,
		OperatorEmail: aggCfg.OperatorEmail,
		ChatRoom:      aggCfg.ChatRoom,
	}

	listener, err := server.Listen(aggCfg.ListenAddr, tlsConfig)
	if err != nil {
		logger.Error("cannot bind listener", slog.Any("error", err))
		os.Exit(1)
	}

	hub := server.NewHub(listener, registry.New(), cat, notifier, logger)

	metricsCfg, enabled, err := result.Config.MetricsEnabled()
	if err != nil {
		logger.Error("metrics config invalid", slog.Any("error", err))
		os.Exit(1)
	}
	if enabled {
		hub.AttachMetrics(metrics.New())
		addr := metricsCfg.Addr
		if addr == "" {
			addr = "127.0.0.1:9116"
		}
		startMetricsServer(addr, hub.Metrics, logger)
	}

	go handleShutdown(listener, logger)

	logger.Info("centralmon-aggregator starting",
		slog.String("version", Version),
		slog.String("listen", aggCfg.ListenAddr),
		slog.Bool("metrics", enabled),
		slog.String("config", result.Path))

	if err := hub.Run(); err != nil {
		logger.Error("aggregator exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func applyFlagOverride(dst *string, flagVal string) {
	if flagVal != "" {
		*dst = flagVal
	}
}

// loadServerTLSConfig builds the aggregator's server-side mTLS config:
// its own identity plus the CA pool agent client certificates must chain
// to, grounded on the same crypto/tls wiring as internal/agentlink's
// client-side loader.
func loadServerTLSConfig(certPath, keyPath, caPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load aggregator cert/key (%s, %s): %w", certPath, keyPath, err)
	}

	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("read CA cert %s: %w", caPath, err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("parse CA cert from %s: no certificates found", caPath)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func startMetricsServer(addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics endpoint listening", slog.String("addr", addr))
}

func handleShutdown(listener *server.Listener, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	logger.Info("centralmon-aggregator shutting down")
	listener.Close()
	os.Exit(0)
}

func newLogger(home, name string, debug bool) *slog.Logger {
	w, err := logwriter.New(filepath.Join(home, name), 10*1024*1024, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file: %v\n", err)
		os.Exit(1)
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(logwriter.NewTimestampWriter(w), &slog.HandlerOptions{Level: level}))
}

// reexecDetached relaunches the current binary with the same arguments in
// a new session, then exits the foreground process (§6 "daemonize").
func reexecDetached(home string) {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot find centralmon-aggregator binary: %v\n", err)
		os.Exit(1)
	}
	self, _ = filepath.EvalSymlinks(self)

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), "CENTRALMON_AGGREGATOR_CHILD=1")
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start detached aggregator: %v\n", err)
		os.Exit(1)
	}
	cmd.Process.Release()
	devnull.Close()

	pidPath := filepath.Join(home, "aggregator.pid")
	os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", cmd.Process.Pid)), 0644)
}
