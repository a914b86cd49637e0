// Package config resolves the aggregator and agent's JSON configuration
// file, following the teacher's search-order and strict-parse-error
// conventions: an explicit --config flag first, then
// <home>/centralmon.config.json, then /etc/centralmon.config.json. Flags
// passed on the command line always override a loaded file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the raw parsed centralmon.config.json. Each top-level key
// uses json.RawMessage for three-state handling: nil (absent) = use
// defaults, "null" = explicitly disabled, "{...}" = configured.
type Config struct {
	AggregatorRaw json.RawMessage `json:"aggregator"`
	Agent         json.RawMessage `json:"agent"`
	Metrics       json.RawMessage `json:"metrics"`
}

// AggregatorConfig is the aggregator's configurable surface (§6).
type AggregatorConfig struct {
	ListenAddr    string `json:"listen_addr"`
	TLSCert       string `json:"tls_cert"`
	TLSKey        string `json:"tls_key"`
	TLSCA         string `json:"tls_ca"`
	CatalogDSN    string `json:"catalog_dsn"`
	OperatorEmail string `json:"operator_email"`
	ChatRoom      string `json:"chat_room"`
	Daemonize     bool   `json:"daemonize"`
	Syslog        bool   `json:"syslog"`
}

// AgentConfig is the agent's configurable surface (§6).
type AgentConfig struct {
	CentralAddr string `json:"central_addr"`
	HostName    string `json:"host_name"`
	TLSCert     string `json:"tls_cert"`
	TLSKey      string `json:"tls_key"`
	TLSCA       string `json:"tls_ca"`
	Daemonize   bool   `json:"daemonize"`
}

// MetricsConfig is the optional Prometheus endpoint; an explicit JSON
// null disables it even though the aggregator would otherwise default to
// serving it.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// LoadResult carries the parsed config plus where it came from, for the
// startup banner.
type LoadResult struct {
	Config *Config
	Path   string // file path used, empty if none
	Source string // "found", "--config flag", ""
}

// Load searches for the config file and parses it. If configFlag is set
// and the file doesn't exist, Load returns an error; otherwise a missing
// file at every search location yields an empty LoadResult (all
// defaults).
func Load(home string, configFlag string) (*LoadResult, error) {
	if configFlag != "" {
		data, err := os.ReadFile(configFlag)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configFlag)
		}
		if err != nil {
			return nil, fmt.Errorf("config file not readable: %s - %w", configFlag, err)
		}
		var cfg Config
		if err := unmarshalStrict(data, &cfg, configFlag); err != nil {
			return nil, err
		}
		return &LoadResult{Config: &cfg, Path: configFlag, Source: "--config flag"}, nil
	}

	for _, path := range []string{
		filepath.Join(home, "centralmon.config.json"),
		"/etc/centralmon.config.json",
	} {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config file not readable: %s - %w", path, err)
		}
		var cfg Config
		if err := unmarshalStrict(data, &cfg, path); err != nil {
			return nil, err
		}
		return &LoadResult{Config: &cfg, Path: path, Source: "found"}, nil
	}
	return &LoadResult{}, nil
}

// Aggregator decodes the "aggregator" section, or zero-value defaults if
// absent. An explicit JSON null is treated the same as absent — the
// aggregator has no "disabled" state of its own.
func (c *Config) Aggregator() (AggregatorConfig, error) {
	var out AggregatorConfig
	if c == nil || len(c.AggregatorRaw) == 0 || isJSONNull(c.AggregatorRaw) {
		return out, nil
	}
	if err := json.Unmarshal(c.AggregatorRaw, &out); err != nil {
		return out, fmt.Errorf("aggregator config: %w", err)
	}
	return out, nil
}

// AgentSection decodes the "agent" section, or zero-value defaults if absent.
func (c *Config) AgentSection() (AgentConfig, error) {
	var out AgentConfig
	if c == nil || len(c.Agent) == 0 || isJSONNull(c.Agent) {
		return out, nil
	}
	if err := json.Unmarshal(c.Agent, &out); err != nil {
		return out, fmt.Errorf("agent config: %w", err)
	}
	return out, nil
}

// MetricsEnabled reports whether the "metrics" section is present and
// not explicitly null, plus its decoded value.
func (c *Config) MetricsEnabled() (MetricsConfig, bool, error) {
	var out MetricsConfig
	if c == nil || len(c.Metrics) == 0 {
		return out, true, nil // absent: defaults, enabled
	}
	if isJSONNull(c.Metrics) {
		return out, false, nil // explicit null: disabled
	}
	if err := json.Unmarshal(c.Metrics, &out); err != nil {
		return out, false, fmt.Errorf("metrics config: %w", err)
	}
	return out, true, nil
}

func unmarshalStrict(data []byte, cfg *Config, path string) error {
	if err := json.Unmarshal(data, cfg); err != nil {
		if synErr, ok := err.(*json.SyntaxError); ok {
			line, col := lineCol(data, synErr.Offset)
			return fmt.Errorf("%s: invalid JSON at line %d, column %d: %s", path, line, col, synErr)
		}
		return fmt.Errorf("%s: invalid JSON - %w", path, err)
	}
	return nil
}

func lineCol(data []byte, offset int64) (int, int) {
	line := 1
	col := 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// isJSONNull checks if raw JSON is the literal "null".
func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 4 && string(raw) == "null"
}

// Home returns the directory centralmon keeps its runtime state in:
// $CENTRALMON_HOME if set, else ~/.centralmon.
func Home() string {
	if h := os.Getenv("CENTRALMON_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".centralmon"
	}
	return filepath.Join(home, ".centralmon")
}
