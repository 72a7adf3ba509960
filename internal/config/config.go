package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ScanPaths    []string        `yaml:"scan_paths"`
	MaxDepth     int             `yaml:"max_depth"`
	PollInterval string          `yaml:"poll_interval"`
	Dashboard    DashboardConfig `yaml:"dashboard"`
	PortRange    PortRange       `yaml:"port_range"`
	LogLevel     string          `yaml:"log_level"`
}

type DashboardConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// PortRange is the inclusive range the allocator hands dev-server ports
// from.
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

const defaultPollInterval = 5 * time.Second

func DefaultConfig() Config {
	return Config{
		MaxDepth:     3,
		PollInterval: "5s",
		Dashboard:    DashboardConfig{Bind: "127.0.0.1", Port: 4400},
		PortRange:    PortRange{Min: 4000, Max: 4399},
		LogLevel:     "info",
	}
}

func Load() (Config, error) {
	return LoadFrom(filepath.Join(ConfigDir(), "config.yaml"))
}

// LoadFromDir loads config.yaml from an explicit directory.
func LoadFromDir(dir string) (Config, error) {
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

func LoadFrom(configPath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}

	if cfg.Dashboard.Bind == "" {
		cfg.Dashboard.Bind = "127.0.0.1"
	}
	if cfg.Dashboard.Port == 0 {
		cfg.Dashboard.Port = 4400
	}
	if cfg.PortRange.Min == 0 || cfg.PortRange.Max == 0 {
		cfg.PortRange = PortRange{Min: 4000, Max: 4399}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Interval parses the poll interval, falling back to the default for
// missing or malformed values.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return defaultPollInterval
	}
	return d
}

// ResolveScanPaths expands "~" prefixes and drops empty entries.
// Defaults to the user's home directory when nothing is configured.
func (c *Config) ResolveScanPaths() []string {
	home, _ := os.UserHomeDir()

	if len(c.ScanPaths) == 0 {
		if home == "" {
			return nil
		}
		return []string{home}
	}

	var resolved []string
	for _, p := range c.ScanPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "~" {
			p = home
		} else if strings.HasPrefix(p, "~/") {
			p = filepath.Join(home, p[2:])
		}
		resolved = append(resolved, p)
	}
	return resolved
}

// ConfigDir returns the configuration directory, honoring XDG_CONFIG_HOME.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "treetop")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "treetop")
	}
	return filepath.Join(home, ".config", "treetop")
}

// DataDir returns the runtime data directory (registry, lock, port file,
// logs), honoring XDG_DATA_HOME.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "treetop")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "share", "treetop")
	}
	return filepath.Join(home, ".local", "share", "treetop")
}

// RegistryPath returns the path of the persisted snapshot file inside
// the given data directory.
func RegistryPath(dataDir string) string {
	return filepath.Join(dataDir, "registry.json")
}
