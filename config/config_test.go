package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[ServiceMode]bool
		wantErr bool
	}{
		{
			name:  "single service",
			input: "http",
			want:  map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:  "all services",
			input: "http,worker,reaper",
			want: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:  "whitespace tolerated",
			input: " http , worker ",
			want: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
		},
		{
			name:  "duplicates collapse",
			input: "worker,worker",
			want:  map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "only commas",
			input:   ",,",
			wantErr: true,
		},
		{
			name:    "unknown service",
			input:   "http,scheduler",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseServices(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAppConfig_ServiceFlags(t *testing.T) {
	cfg := AppConfig{Services: "http,reaper"}

	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsWorkerEnabled())
	assert.True(t, cfg.IsReaperEnabled())

	invalid := AppConfig{Services: "bogus"}
	assert.False(t, invalid.IsHTTPServerEnabled())
	assert.False(t, invalid.IsWorkerEnabled())
	assert.False(t, invalid.IsReaperEnabled())
}

func TestWorkerConfig_SanitizeGuardrails(t *testing.T) {
	cfg := WorkerConfig{
		Concurrency:    0,
		JobLease:       time.Second,
		OverallTimeout: time.Second,
		MaxRetries:     -1,
	}
	cfg.Sanitize()

	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.JobLease)
	assert.Equal(t, 10*time.Second, cfg.OverallTimeout)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestGathererConfig_SanitizeGuardrails(t *testing.T) {
	cfg := GathererConfig{
		NodeTimeout:       10 * time.Millisecond,
		AggregateDeadline: 500 * time.Millisecond,
	}
	cfg.Sanitize()

	assert.Equal(t, time.Second, cfg.NodeTimeout)
	assert.Equal(t, time.Second, cfg.AggregateDeadline,
		"aggregate deadline must be at least the node timeout")
}

func TestSynthesizerConfig_SanitizeGuardrails(t *testing.T) {
	cfg := SynthesizerConfig{
		ProviderTimeout:  -time.Second,
		DefaultMaxWords:  0,
		BreakerThreshold: 0,
		BreakerCooldown:  time.Millisecond,
	}
	cfg.Sanitize()

	assert.Equal(t, 20*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 500, cfg.DefaultMaxWords)
	assert.Equal(t, 1, cfg.BreakerThreshold)
	assert.Equal(t, time.Second, cfg.BreakerCooldown)
}

func TestUpdaterConfig_SanitizeGuardrails(t *testing.T) {
	cfg := UpdaterConfig{
		MaxAttempts: 0,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Microsecond,
	}
	cfg.Sanitize()

	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, cfg.BackoffBase, cfg.BackoffCap, "cap may never undercut the base")
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestReaperConfig_SanitizeGuardrails(t *testing.T) {
	cfg := ReaperConfig{
		Interval:       time.Second,
		PendingMaxAge:  time.Minute,
		TerminalMaxAge: time.Minute,
		BatchSize:      100000,
	}
	cfg.Sanitize()

	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.PendingMaxAge)
	assert.Equal(t, time.Hour, cfg.TerminalMaxAge)
	assert.Equal(t, 10000, cfg.BatchSize)
}

func TestHTTPConfig_SanitizeGuardrails(t *testing.T) {
	cfg := HTTPConfig{MaxBodyBytes: 10}
	cfg.Sanitize()

	assert.GreaterOrEqual(t, cfg.MaxBodyBytes, int64(1024))
}

func TestAppConfig_SanitizeCascades(t *testing.T) {
	cfg := AppConfig{Services: "http"}
	cfg.Sanitize()

	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, 1, cfg.Updater.MaxAttempts)
	assert.NotZero(t, cfg.Reaper.Interval)
}

func TestAppConfig_SanitizeDoesNotReadEnvironment(t *testing.T) {
	// Dev mode comes from the parsed DEV variable only; variables set by
	// adjacent tooling must not flip it behind the parser's back.
	t.Setenv("NODE_ENV", "development")

	cfg := AppConfig{Services: "http"}
	cfg.Sanitize()

	assert.False(t, cfg.IsDev)
}
