// Package config parses CLI flags with DOOMNET_*-prefixed environment
// overrides, following the explicit-flag-wins-over-env layering the rest
// of this repository's ambient stack uses.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"
)

// Config holds every CLI-configurable knob for the client binary.
type Config struct {
	ServerAddr    string
	PlayerName    string
	Protocol      string
	Drone         bool
	Extratics     int
	LogFormat     string
	LogLevel      string
	MetricsAddr   string
	DiscoverTime  time.Duration
}

// Parse parses os.Args (via the flag package) and layers DOOMNET_*
// environment overrides on top of unset flags, then validates. showVersion
// is true when -version was passed, independent of validation outcome.
func Parse() (*Config, bool, error) {
	cfg := &Config{}

	server := flag.String("server", "127.0.0.1:2342", "Server address to connect to")
	name := flag.String("name", defaultPlayerName(), "Player name")
	protocol := flag.String("protocol", "CHOCOLATE_DOOM_0", "Protocol name (parsed only; the SYN always offers CHOCOLATE_DOOM_0)")
	drone := flag.Bool("drone", false, "Connect as a drone (observer, no local input)")
	extratics := flag.Int("extratics", 1, "Redundant tics per GAMEDATA, in [0,9] (validated only; the client uses the extratics from the server's GAMESTART)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	discover := flag.Duration("discover", 0, "If >0, browse the LAN for servers via mDNS for this long instead of connecting")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 && *name == defaultPlayerName() {
		*name = args[0]
	}

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.ServerAddr = *server
	cfg.PlayerName = *name
	cfg.Protocol = *protocol
	cfg.Drone = *drone
	cfg.Extratics = *extratics
	cfg.LogFormat = *logFormat
	cfg.LogLevel = *logLevel
	cfg.MetricsAddr = *metricsAddr
	cfg.DiscoverTime = *discover

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, *showVersion, fmt.Errorf("config: environment override: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, *showVersion, fmt.Errorf("config: %w", err)
	}
	return cfg, *showVersion, nil
}

func defaultPlayerName() string {
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "player"
}

// validate performs semantic validation only; it never opens a socket.
func (c *Config) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.LogLevel)
	}
	if c.ServerAddr == "" {
		return errors.New("server address must not be empty")
	}
	if c.Extratics < 0 || c.Extratics > 9 {
		return fmt.Errorf("extratics must be in [0,9] (got %d)", c.Extratics)
	}
	if c.DiscoverTime < 0 {
		return errors.New("discover duration must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps DOOMNET_* environment variables onto cfg unless
// the corresponding flag was explicitly set (flag wins over env).
func applyEnvOverrides(c *Config, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["server"]; !ok {
		if v, ok := get("DOOMNET_SERVER"); ok && v != "" {
			c.ServerAddr = v
		}
	}
	if _, ok := set["name"]; !ok {
		if v, ok := get("DOOMNET_NAME"); ok && v != "" {
			c.PlayerName = v
		}
	}
	if _, ok := set["protocol"]; !ok {
		if v, ok := get("DOOMNET_PROTOCOL"); ok && v != "" {
			c.Protocol = v
		}
	}
	if _, ok := set["drone"]; !ok {
		if v, ok := get("DOOMNET_DRONE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.Drone = true
			case "0", "false", "no", "off":
				c.Drone = false
			}
		}
	}
	if _, ok := set["extratics"]; !ok {
		if v, ok := get("DOOMNET_EXTRATICS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Extratics = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid DOOMNET_EXTRATICS: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("DOOMNET_LOG_FORMAT"); ok && v != "" {
			c.LogFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("DOOMNET_LOG_LEVEL"); ok && v != "" {
			c.LogLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("DOOMNET_METRICS"); ok {
			c.MetricsAddr = v
		}
	}
	if _, ok := set["discover"]; !ok {
		if v, ok := get("DOOMNET_DISCOVER"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.DiscoverTime = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DOOMNET_DISCOVER: %w", err)
			}
		}
	}
	return firstErr
}
