package server

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/calls"
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/timers"
)

// ConfigFile is read from the data directory, if present, on top of the
// defaults.
const ConfigFile = "juicebridge.toml"

type Config struct {
	Dir     string `toml:"-"`
	SSHAddr string `toml:"ssh_addr"`
	// ScriptsDir, AugmentsDir and ControlSocket are relative to Dir unless
	// absolute.
	ScriptsDir    string `toml:"scripts_dir"`
	AugmentsDir   string `toml:"augments_dir"`
	ControlSocket string `toml:"control_socket"`

	Timeout       time.Duration `toml:"timeout"`
	MinTimerDelay time.Duration `toml:"min_timer_delay"`
	// CapturePolicy is "warn" or "rewrite".
	CapturePolicy string `toml:"capture_policy"`
	CallDepth     int    `toml:"call_depth"`
	// ThinkInterval is how often the onThink handlers of loaded sources
	// run. Zero disables them.
	ThinkInterval time.Duration `toml:"think_interval"`
	Seed          uint64        `toml:"seed"`

	FaultLogMaxSizeMB  int `toml:"fault_log_max_size_mb"`
	FaultLogMaxBackups int `toml:"fault_log_max_backups"`
	FaultLogMaxAgeDays int `toml:"fault_log_max_age_days"`

	// Admins maps console user names to Argon2id password hashes.
	Admins map[string]string `toml:"admins"`
}

func DefaultConfig() Config {
	return Config{
		SSHAddr:            "127.0.0.1:15000",
		ScriptsDir:         "src",
		AugmentsDir:        "augments",
		ControlSocket:      "control.sock",
		Timeout:            js.DefaultTimeout,
		MinTimerDelay:      timers.DefaultMinDelay,
		CapturePolicy:      timers.PolicyWarn.String(),
		CallDepth:          calls.DefaultDepth,
		ThinkInterval:      time.Second,
		Seed:               uint64(time.Now().UnixNano()),
		FaultLogMaxSizeMB:  10,
		FaultLogMaxBackups: 5,
		FaultLogMaxAgeDays: 30,
		Admins:             map[string]string{},
	}
}

// Overlay decodes path on top of c. A missing file is not an error.
func (c *Config) Overlay(path string) error {
	if _, err := toml.DecodeFile(path, c); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return juicebridge.WithStack(err)
	}
	return nil
}

func (c Config) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
