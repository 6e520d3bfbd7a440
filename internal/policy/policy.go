// Package policy loads hub configuration from YAML with environment
// overrides and serves live tunables to the rest of the process.
package policy

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds hub configuration.
type Config struct {
	APIPort      int    `yaml:"api_port"`       // control-plane HTTP port
	MCPPort      int    `yaml:"mcp_port"`       // alternative port for the push stream; 0 = share APIPort
	HubURL       string `yaml:"hub_url"`        // peer-relative URL used by adapters
	DashboardURL string `yaml:"dashboard_url"`  // advertised base URL
	LogFile      string `yaml:"log_file"`

	LockTTLSeconds         int `yaml:"lock_ttl_seconds"`          // default lock TTL (default 30)
	LockSweepSeconds       int `yaml:"lock_sweep_seconds"`        // lock sweeper period (default 5)
	PresenceSweepSeconds   int `yaml:"presence_sweep_seconds"`    // presence sweeper period (default 30)
	ConvergenceTickSeconds int `yaml:"convergence_tick_seconds"`  // world-state tick period (default 2)
	DocGCSeconds           int `yaml:"doc_gc_seconds"`            // empty doc session grace (default 60)

	PresenceDisconnectMinutes int `yaml:"presence_disconnect_minutes"` // silence before disconnected (default 5)
	PresenceRemoveMinutes     int `yaml:"presence_remove_minutes"`     // silence before removal (default 15)
}

// DefaultConfig returns the defaults from the hub contract.
func DefaultConfig() *Config {
	return &Config{
		APIPort:                   3200,
		LockTTLSeconds:            30,
		LockSweepSeconds:          5,
		PresenceSweepSeconds:      30,
		ConvergenceTickSeconds:    2,
		DocGCSeconds:              60,
		PresenceDisconnectMinutes: 5,
		PresenceRemoveMinutes:     15,
	}
}

// LoadConfig loads configuration from a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays recognized environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = p
		}
	}
	if v := os.Getenv("MCP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.MCPPort = p
		}
	}
	if v := os.Getenv("HUB_URL"); v != "" {
		cfg.HubURL = v
	}
	if v := os.Getenv("SYNAPSE_DASHBOARD_URL"); v != "" {
		cfg.DashboardURL = v
	}
}

// Policy serves configuration to handlers and sweepers. Tunables can be
// swapped at runtime by the config watcher; readers always see a
// consistent Config value.
type Policy struct {
	mu  sync.RWMutex
	cfg *Config
}

// New wraps a loaded Config.
func New(cfg *Config) *Policy {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Policy{cfg: cfg}
}

// Reload replaces the active config. Ports and URLs from the original
// config are kept: only sweep/TTL tunables can change at runtime.
func (p *Policy) Reload(cfg *Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg.APIPort = p.cfg.APIPort
	cfg.MCPPort = p.cfg.MCPPort
	cfg.HubURL = p.cfg.HubURL
	cfg.DashboardURL = p.cfg.DashboardURL
	p.cfg = cfg
}

// Snapshot returns the active config value.
func (p *Policy) Snapshot() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.cfg
}

// LockTTL returns the default lock TTL.
func (p *Policy) LockTTL() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.cfg.LockTTLSeconds) * time.Second
}

// LockSweepInterval returns the lock sweeper period.
func (p *Policy) LockSweepInterval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.cfg.LockSweepSeconds) * time.Second
}

// PresenceSweepInterval returns the presence sweeper period.
func (p *Policy) PresenceSweepInterval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.cfg.PresenceSweepSeconds) * time.Second
}

// ConvergenceTick returns the world-state tick period.
func (p *Policy) ConvergenceTick() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.cfg.ConvergenceTickSeconds) * time.Second
}

// DocGCDelay returns the empty doc session grace period.
func (p *Policy) DocGCDelay() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.cfg.DocGCSeconds) * time.Second
}

// DisconnectAfter returns the silence threshold for marking an agent disconnected.
func (p *Policy) DisconnectAfter() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.cfg.PresenceDisconnectMinutes) * time.Minute
}

// RemoveAfter returns the silence threshold for removing an agent.
func (p *Policy) RemoveAfter() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.cfg.PresenceRemoveMinutes) * time.Minute
}

// APIPort returns the control-plane port.
func (p *Policy) APIPort() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.APIPort
}

// MCPPort returns the push-stream port (0 = share the control-plane port).
func (p *Policy) MCPPort() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.MCPPort
}

// DashboardURL returns the advertised base URL.
func (p *Policy) DashboardURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.DashboardURL
}

// LogFile returns the configured log file path ("" = stderr only).
func (p *Policy) LogFile() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.LogFile
}
