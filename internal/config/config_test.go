package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("streams:\n  prefix: app\n"))
	require.NoError(t, err)

	assert.Equal(t, "app", cfg.Streams.Prefix)
	assert.Equal(t, "127.0.0.1:6380", cfg.Store.Addr)
	assert.Equal(t, time.Duration(-1), cfg.Store.ReadTimeout)
	assert.Equal(t, int64(10), cfg.Consumer.Read.Count)
	assert.Equal(t, 5*time.Second, cfg.Consumer.Read.Block)
	assert.Equal(t, "-", cfg.Consumer.Recovery.Start)
	assert.Equal(t, "+", cfg.Consumer.Recovery.End)
	assert.Equal(t, CutPointLastAcknowledged, cfg.Consumer.Trim.CutPoint)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParse_Durations(t *testing.T) {
	doc := `
consumer:
  read:
    block: 250ms
  recovery:
    min_idle: 1m
store:
  read_timeout: 10s
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Consumer.Read.Block)
	assert.Equal(t, time.Minute, cfg.Consumer.Recovery.MinIdle)
	assert.Equal(t, 10*time.Second, cfg.Store.ReadTimeout)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "consumer: [1, 2"},
		{"unknown cut point", "consumer:\n  trim:\n    cut_point: newest\n"},
		{"trim without length", "consumer:\n  trim:\n    enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestRedisOptions(t *testing.T) {
	cfg := Default()
	cfg.Store.Password = "secret"

	opts := cfg.RedisOptions()
	assert.Equal(t, "127.0.0.1:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.Protocol)
	assert.True(t, opts.DisableIdentity)
	assert.Equal(t, time.Duration(-1), opts.ReadTimeout)
}

func TestLoadConfig_WalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "test.yaml"), []byte("queue:\n  name: q1\n"), 0o644))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(wd)

	cfg, err := LoadConfig("test")
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "q1", cfg.Queue.Name)

	_, err = LoadConfig("missing")
	assert.Error(t, err)
}

func TestEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	assert.Equal(t, "development", Env())

	t.Setenv(EnvVar, "production")
	assert.Equal(t, "production", Env())
}

func TestServerAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1:6380", Default().Server.Address())
}
