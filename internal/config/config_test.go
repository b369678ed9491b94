package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpsform/internal/geo"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "gpsform.db", cfg.DB)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, InitialProbe, cfg.InitialOnline)
	assert.True(t, cfg.Watch)
	assert.Equal(t, 15*time.Second, cfg.WatchInterval)
	assert.False(t, cfg.ClearAfterSubmit)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("GPSFORM_ENDPOINT", "https://example.com/submit")
	t.Setenv("GPSFORM_TIMEOUT", "3s")
	t.Setenv("GPSFORM_CLEAR_AFTER_SUBMIT", "true")
	t.Setenv("GPSFORM_INITIAL_ONLINE", "Offline")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/submit", cfg.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.True(t, cfg.ClearAfterSubmit)
	assert.Equal(t, InitialOffline, cfg.InitialOnline)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpsform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: https://file.example.com/forms
db: /var/lib/gpsform/queue.db
watch_interval: 1m
fix: "40.4168,-3.7038"
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com/forms", cfg.Endpoint)
	assert.Equal(t, "/var/lib/gpsform/queue.db", cfg.DB)
	assert.Equal(t, time.Minute, cfg.WatchInterval)
	assert.Equal(t, "40.4168,-3.7038", cfg.Fix)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpsform.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint: https://file.example.com\naddr: :9000\ndb: file.db\n"), 0o644))
	t.Setenv("GPSFORM_ADDR", ":9100")
	t.Setenv("GPSFORM_DB", "env.db")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--db", "flag.db"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.Endpoint, "file beats default")
	assert.Equal(t, ":9100", cfg.Addr, "env beats file")
	assert.Equal(t, "flag.db", cfg.DB, "flag beats env")
}

func TestRegisterFlags_Subset(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, "endpoint", "probe_url", "timeout")
	RegisterFlags(fs, "endpoint") // already defined, skipped

	assert.NotNil(t, fs.Lookup("endpoint"))
	assert.NotNil(t, fs.Lookup("probe-url"))
	assert.NotNil(t, fs.Lookup("timeout"))
	assert.Nil(t, fs.Lookup("addr"))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Endpoint:      "https://example.com/submit",
			Timeout:       time.Second,
			InitialOnline: InitialProbe,
			Watch:         true,
			WatchInterval: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint must be set"},
		{"non-http endpoint", func(c *Config) { c.Endpoint = "ftp://example.com" }, "http(s)"},
		{"no host", func(c *Config) { c.Endpoint = "http://" }, "no host"},
		{"bad probe url", func(c *Config) { c.ProbeURL = "localhost:80" }, "probe_url"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"zero watch interval", func(c *Config) { c.WatchInterval = 0 }, "watch_interval"},
		{"watch disabled ignores interval", func(c *Config) { c.Watch = false; c.WatchInterval = 0 }, ""},
		{"bad initial state", func(c *Config) { c.InitialOnline = "maybe" }, "initial_online"},
		{"bad fix", func(c *Config) { c.Fix = "north" }, "fix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProbeTarget(t *testing.T) {
	c := &Config{Endpoint: "https://example.com/submit"}
	assert.Equal(t, "https://example.com/submit", c.ProbeTarget())

	c.ProbeURL = "https://example.com/health"
	assert.Equal(t, "https://example.com/health", c.ProbeTarget())
}

func TestLocation(t *testing.T) {
	tests := []struct {
		fix     string
		want    *geo.Location
		wantErr bool
	}{
		{"", nil, false},
		{"40.4168,-3.7038", &geo.Location{Latitude: 40.4168, Longitude: -3.7038}, false},
		{" 1.5 , 2.5 ", &geo.Location{Latitude: 1.5, Longitude: 2.5}, false},
		{"91,0", nil, true},
		{"a,b", nil, true},
		{"12", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.fix, func(t *testing.T) {
			got, err := (&Config{Fix: tt.fix}).Location()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocator(t *testing.T) {
	_, ok := (&Config{}).Locator().(geo.UnavailableProvider)
	assert.True(t, ok)

	_, ok = (&Config{Fix: "1,2"}).Locator().(*geo.StaticProvider)
	assert.True(t, ok)
}
