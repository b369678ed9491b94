package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProber_StatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		reachable bool
	}{
		{"ok", http.StatusOK, true},
		{"no content", http.StatusNoContent, true},
		{"redirect", http.StatusFound, true},
		{"method not allowed", http.StatusMethodNotAllowed, true},
		{"not found", http.StatusNotFound, false},
		{"server error", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				assert.Equal(t, "gpsform/0.1.0", r.Header.Get("User-Agent"))
				if tt.status == http.StatusFound {
					w.Header().Set("Location", "/elsewhere")
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewHTTPProber(server.URL, time.Second).Probe(context.Background())
			if tt.reachable {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "HTTP")
			}
		})
	}
}

func TestHTTPProber_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewHTTPProber(url, time.Second).Probe(context.Background())
	assert.Error(t, err)
}

func TestHTTPProber_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	err := NewHTTPProber(server.URL, 50*time.Millisecond).Probe(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPProber_InvalidURL(t *testing.T) {
	err := NewHTTPProber("://bad", time.Second).Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create probe request")
}

func TestNewHTTPProber_DefaultTimeout(t *testing.T) {
	p := NewHTTPProber("http://example.invalid", 0)
	assert.Equal(t, DefaultProbeTimeout, p.client.Timeout)
	assert.Equal(t, "http://example.invalid", p.URL())
}

func TestHTTPProber_PostOnlyEndpointKeepsMonitorOnline(t *testing.T) {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer collector.Close()

	m := NewMonitor(false)
	w := NewWatcher(m, NewHTTPProber(collector.URL, time.Second), time.Minute)

	tr, changed := w.Check(context.Background())
	require.True(t, changed)
	assert.Equal(t, Online, tr.To)

	_, changed = w.Check(context.Background())
	assert.False(t, changed)
	assert.True(t, m.Online())
}
