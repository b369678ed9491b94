// Package config loads gpsform settings with Viper.
//
// Precedence, lowest first: defaults, optional YAML config file, GPSFORM_*
// environment variables, command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/gpsform/internal/geo"
)

// EnvPrefix prefixes every environment variable, e.g. GPSFORM_ENDPOINT.
const EnvPrefix = "GPSFORM"

// Initial connectivity modes.
const (
	InitialOnline  = "online"
	InitialOffline = "offline"
	InitialProbe   = "probe"
)

// Config holds gpsform configuration.
type Config struct {
	// DB is the SQLite file backing the durable queue.
	DB string `mapstructure:"db"`
	// Endpoint is the submission URL records are POSTed to.
	Endpoint string `mapstructure:"endpoint"`
	// ProbeURL is the reachability probe target; empty means Endpoint.
	ProbeURL string `mapstructure:"probe_url"`
	// Probe corroborates an online signal with a probe before each direct send.
	Probe bool `mapstructure:"probe"`
	// Timeout bounds one delivery attempt.
	Timeout time.Duration `mapstructure:"timeout"`
	// InitialOnline seeds the connectivity signal: online, offline or probe.
	InitialOnline string `mapstructure:"initial_online"`
	// Watch runs the periodic reachability watcher (serve only).
	Watch bool `mapstructure:"watch"`
	// WatchInterval is the watcher's probe interval while online.
	WatchInterval time.Duration `mapstructure:"watch_interval"`
	// ClearAfterSubmit drops held coordinates once a submission resolves.
	ClearAfterSubmit bool `mapstructure:"clear_after_submit"`
	// Addr is the listen address of the web surface.
	Addr string `mapstructure:"addr"`
	// Fix is a static "lat,lon" position served by the capture action.
	// Empty means geolocation is unavailable.
	Fix string `mapstructure:"fix"`
	// Trace exports OpenTelemetry spans to stderr.
	Trace bool `mapstructure:"trace"`
}

// defaults is the single source of default values for keys and flags.
var defaults = map[string]any{
	"db":                 "gpsform.db",
	"endpoint":           "",
	"probe_url":          "",
	"probe":              false,
	"timeout":            10 * time.Second,
	"initial_online":     InitialProbe,
	"watch":              true,
	"watch_interval":     15 * time.Second,
	"clear_after_submit": false,
	"addr":               "127.0.0.1:8080",
	"fix":                "",
	"trace":              false,
}

var usage = map[string]string{
	"db":                 "SQLite file for the durable queue",
	"endpoint":           "submission endpoint URL",
	"probe_url":          "reachability probe URL (default: endpoint)",
	"probe":              "probe the endpoint before each direct send",
	"timeout":            "timeout for one delivery attempt",
	"initial_online":     "initial connectivity: online, offline or probe",
	"watch":              "periodically probe reachability (serve)",
	"watch_interval":     "probe interval while online",
	"clear_after_submit": "clear captured coordinates after each submission",
	"addr":               "listen address for the web surface",
	"fix":                "static geolocation fix as \"lat,lon\"",
	"trace":              "export OpenTelemetry spans to stderr",
}

// FlagName maps a config key to its flag name (probe_url -> probe-url).
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags defines a flag for each named key on fs. With no keys,
// every key is registered.
func RegisterFlags(fs *pflag.FlagSet, keys ...string) {
	if len(keys) == 0 {
		for key := range defaults {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		name := FlagName(key)
		if fs.Lookup(name) != nil {
			continue
		}
		switch d := defaults[key].(type) {
		case string:
			fs.String(name, d, usage[key])
		case bool:
			fs.Bool(name, d, usage[key])
		case time.Duration:
			fs.Duration(name, d, usage[key])
		default:
			panic(fmt.Sprintf("config: no default for key %q", key))
		}
	}
}

// Load builds Config from defaults, the optional file at path, the
// environment, and any flags in fs registered with RegisterFlags.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if fs != nil {
		for key := range defaults {
			if f := fs.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.InitialOnline = strings.ToLower(strings.TrimSpace(cfg.InitialOnline))
	return &cfg, nil
}

// Validate checks the settings needed to submit records.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("config: endpoint must be set")
	}
	if err := checkURL("endpoint", c.Endpoint); err != nil {
		return err
	}
	if c.ProbeURL != "" {
		if err := checkURL("probe_url", c.ProbeURL); err != nil {
			return err
		}
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Watch && c.WatchInterval <= 0 {
		return errors.New("config: watch_interval must be positive")
	}
	switch c.InitialOnline {
	case InitialOnline, InitialOffline, InitialProbe:
	default:
		return fmt.Errorf("config: initial_online must be online, offline or probe, got %q", c.InitialOnline)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// ProbeTarget returns the URL the reachability probe checks.
func (c *Config) ProbeTarget() string {
	if c.ProbeURL != "" {
		return c.ProbeURL
	}
	return c.Endpoint
}

// Location parses Fix. Returns nil when no fix is configured.
func (c *Config) Location() (*geo.Location, error) {
	if strings.TrimSpace(c.Fix) == "" {
		return nil, nil
	}
	lat, lon, ok := strings.Cut(c.Fix, ",")
	if !ok {
		return nil, fmt.Errorf("config: fix must be \"lat,lon\", got %q", c.Fix)
	}
	latV, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return nil, fmt.Errorf("config: fix latitude: %w", err)
	}
	lonV, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return nil, fmt.Errorf("config: fix longitude: %w", err)
	}
	loc := &geo.Location{Latitude: latV, Longitude: lonV}
	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("config: fix: %w", err)
	}
	return loc, nil
}

// Locator returns the geolocation provider for the configured fix.
func (c *Config) Locator() geo.Provider {
	loc, err := c.Location()
	if err != nil || loc == nil {
		return geo.UnavailableProvider{}
	}
	return geo.NewStaticProvider(loc.Latitude, loc.Longitude)
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: %s must be an http(s) URL, got %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("config: %s has no host: %q", key, raw)
	}
	return nil
}
