// Command centralmon-agent is the thin uplink process (§4.2): it samples
// local system and process state and answers the aggregator's requests
// over a reconnecting mTLS connection.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/7c/centralmon/internal/agentlink"
	"github.com/7c/centralmon/internal/collector"
	"github.com/7c/centralmon/internal/config"
	"github.com/7c/centralmon/internal/logwriter"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	configFlag := flag.String("config", "", "path to centralmon.config.json")
	centralAddr := flag.String("central", "", "aggregator \"host:port\" (overrides config)")
	hostName := flag.String("host", "", "this agent's identifying host name (overrides config)")
	certPath := flag.String("cert", "", "agent TLS certificate path (overrides config)")
	keyPath := flag.String("key", "", "agent TLS key path (overrides config)")
	caPath := flag.String("ca", "", "CA certificate path for verifying the aggregator (overrides config)")
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
	agentCfg, err := result.Config.AgentSection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: centralmon.config.json: %s\n", err)
		os.Exit(1)
	}

	applyFlagOverride(&agentCfg.CentralAddr, *centralAddr)
	applyFlagOverride(&agentCfg.HostName, *hostName)
	applyFlagOverride(&agentCfg.TLSCert, *certPath)
	applyFlagOverride(&agentCfg.TLSKey, *keyPath)
	applyFlagOverride(&agentCfg.TLSCA, *caPath)
	if *daemonize {
		agentCfg.Daemonize = true
	}

	if agentCfg.CentralAddr == "" {
		fmt.Fprintln(os.Stderr, "ERROR: --central (or config \"agent.central_addr\") is required")
		os.Exit(1)
	}

	if agentCfg.Daemonize && os.Getenv("CENTRALMON_AGENT_CHILD") == "" {
		reexecDetached(home)
		return
	}

	logger := newLogger(home, "agent.log", *debug)

	link := agentlink.New(agentlink.Config{
		CentralAddr: agentCfg.CentralAddr,
		HostName:    agentCfg.HostName,
		CertPath:    agentCfg.TLSCert,
		KeyPath:     agentCfg.TLSKey,
		CAPath:      agentCfg.TLSCA,
	}, collector.New(), logger)

	logger.Info("centralmon-agent starting", slog.String("version", Version), slog.String("central", agentCfg.CentralAddr))
	if err := link.Run(); err != nil {
		logger.Error("agent exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func applyFlagOverride(dst *string, flagVal string) {
	if flagVal != "" {
		*dst = flagVal
	}
}

// newLogger opens a rotating log file under home and returns a slog
// logger writing to it, matching the teacher's daemon logging setup
// (internal/daemon/daemon.go: file handler, debug-gated level).
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
// a new session, then exits the foreground process (§6 "daemonize"),
// matching the teacher's detached-subprocess pattern in internal/client.
func reexecDetached(home string) {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot find centralmon-agent binary: %v\n", err)
		os.Exit(1)
	}
	self, _ = filepath.EvalSymlinks(self)

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), "CENTRALMON_AGENT_CHILD=1")
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
		fmt.Fprintf(os.Stderr, "failed to start detached agent: %v\n", err)
		os.Exit(1)
	}
	cmd.Process.Release()
	devnull.Close()

	pidPath := filepath.Join(home, "agent.pid")
	os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", cmd.Process.Pid)), 0644)
}
