package server

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/coolmuscle-steer/internal/coolmuscle"
)

// Config holds all steerd configuration.
type Config struct {
	mu sync.RWMutex

	Actuator ActuatorConfig `yaml:"actuator" json:"actuator"`
	Startup  StartupConfig  `yaml:"startup" json:"startup"`
	Monitor  MonitorConfig  `yaml:"monitor" json:"monitor"`
	Trace    TraceConfig    `yaml:"trace" json:"trace"`

	path string // file path for save/load
}

type ActuatorConfig struct {
	Type     string `yaml:"type" json:"type"`          // "coolmuscle" or "demo"
	PortPath string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyCoolMuscle
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
	Driver   string `yaml:"driver" json:"driver"` // "bugst" or "tarm"

	LimitCCW     coolmuscle.Limit `yaml:"limit_ccw" json:"limitCcw"`
	LimitCW      coolmuscle.Limit `yaml:"limit_cw" json:"limitCw"`
	OriginOffset int64            `yaml:"origin_offset" json:"originOffset"` // pulses

	TimeoutMs     int   `yaml:"timeout_ms" json:"timeoutMs"`           // per reply
	InitTimeoutMs int   `yaml:"init_timeout_ms" json:"initTimeoutMs"` // homing
	InitAck       int64 `yaml:"init_ack" json:"initAck"`

	Defaults coolmuscle.Defaults `yaml:"defaults" json:"defaults"`
	Commands map[string]string   `yaml:"commands" json:"commands"` // overrides by key
}

type StartupConfig struct {
	CenterOnStart bool `yaml:"center_on_start" json:"centerOnStart"`
	ConnectTries  int  `yaml:"connect_tries" json:"connectTries"`
}

type MonitorConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
	PollHz     int    `yaml:"poll_hz" json:"pollHz"`
}

type TraceConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between rows
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Actuator: ActuatorConfig{
			Type:          "coolmuscle",
			PortPath:      "/dev/ttyCoolMuscle",
			BaudRate:      coolmuscle.DefaultBaudRate,
			Driver:        "bugst",
			LimitCCW:      coolmuscle.Limit{Angle: 1.5708, Pulse: 5000},
			LimitCW:       coolmuscle.Limit{Angle: -1.5708, Pulse: -5000},
			OriginOffset:  0,
			TimeoutMs:     int(coolmuscle.DefaultTimeout / time.Millisecond),
			InitTimeoutMs: int(coolmuscle.DefaultInitTimeout / time.Millisecond),
			InitAck:       coolmuscle.DefaultInitAck,
			Defaults: coolmuscle.Defaults{
				Speed:  coolmuscle.DefaultSpeed,
				Accel:  coolmuscle.DefaultAccel,
				Torque: coolmuscle.DefaultTorque,
			},
		},
		Startup: StartupConfig{
			CenterOnStart: true,
			ConnectTries:  10,
		},
		Monitor: MonitorConfig{
			Enabled:    true,
			ListenAddr: ":8080",
			PollHz:     10,
		},
		Trace: TraceConfig{
			Enabled:  false,
			Path:     "/var/log/steerd",
			Interval: 100,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: STEER_TYPE, STEER_PORT, STEER_BAUD, STEER_DRIVER,
// STEER_ORIGIN_OFFSET, STEER_TIMEOUT_MS, LISTEN_ADDR, MONITOR_POLL_HZ,
// TRACE_ENABLED, TRACE_PATH, TRACE_INTERVAL_MS
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STEER_TYPE"); v != "" {
		c.Actuator.Type = v
	}
	if v := os.Getenv("STEER_PORT"); v != "" {
		c.Actuator.PortPath = v
	}
	if v := os.Getenv("STEER_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Actuator.BaudRate = n
		}
	}
	if v := os.Getenv("STEER_DRIVER"); v != "" {
		c.Actuator.Driver = v
	}
	if v := os.Getenv("STEER_ORIGIN_OFFSET"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Actuator.OriginOffset = n
		}
	}
	if v := os.Getenv("STEER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Actuator.TimeoutMs = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Monitor.ListenAddr = v
	}
	if v := os.Getenv("MONITOR_POLL_HZ"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.PollHz = n
		}
	}
	// Trace
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		c.Trace.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("TRACE_PATH"); v != "" {
		c.Trace.Path = v
	}
	if v := os.Getenv("TRACE_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Trace.Interval = n
		}
	}
}

// ControllerConfig builds the actuator configuration. The serial driver is
// resolved here so a bad driver name fails at startup.
func (c *Config) ControllerConfig() (coolmuscle.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a := c.Actuator
	open, err := coolmuscle.OpenerFor(a.Driver)
	if err != nil {
		return coolmuscle.Config{}, err
	}
	var cmds coolmuscle.CommandTable
	if len(a.Commands) > 0 {
		cmds = coolmuscle.CommandTable(a.Commands)
	}
	return coolmuscle.Config{
		PortPath:     a.PortPath,
		BaudRate:     a.BaudRate,
		LimitCCW:     a.LimitCCW,
		LimitCW:      a.LimitCW,
		OriginOffset: a.OriginOffset,
		Commands:     cmds,
		Timeout:      time.Duration(a.TimeoutMs) * time.Millisecond,
		InitTimeout:  time.Duration(a.InitTimeoutMs) * time.Millisecond,
		InitAck:      a.InitAck,
		Defaults:     a.Defaults,
		Open:         open,
	}, nil
}

// SetTraceEnabled updates the trace switch in place.
func (c *Config) SetTraceEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Trace.Enabled = on
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/steerd/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}
