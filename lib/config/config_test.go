package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"RESOLUME_HOST", "RESOLUME_REST_PORT", "RESOLUME_OSC_PORT", "PORT", "MOCK", "SERVER_USER_DATA"} {
		t.Setenv(name, "")
	}
	t.Setenv("SHOWCALL_DATA_DIR", t.TempDir())
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)

	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, path, resolved)
	assert.Equal(t, "localhost", cfg.Resolume.Host)
	assert.Equal(t, 8080, cfg.Resolume.RestPort)
	assert.Equal(t, 7000, cfg.Resolume.OSCPort)
	assert.Equal(t, 3200, cfg.Server.Port)
	assert.Equal(t, filepath.Dir(path), cfg.Paths.DataDir)
	assert.Equal(t, "0.0.0.0:3200", cfg.ListenAddr())
}

func TestSampleParsesToDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, CreateSample(path))

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)

	want := Default()
	require.NoError(t, want.normalize(filepath.Dir(path)))
	assert.Equal(t, want, *cfg)
}

func TestLoadOrSeedWritesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", FileName)

	_, resolved, err := LoadOrSeed(path)
	require.NoError(t, err)
	_, err = os.Stat(resolved)
	assert.NoError(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESOLUME_HOST", "10.0.0.9")
	t.Setenv("RESOLUME_REST_PORT", "8081")
	t.Setenv("PORT", "4000")
	t.Setenv("MOCK", "1")

	cfg, _, _, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.Resolume.Host)
	assert.Equal(t, 8081, cfg.Resolume.RestPort)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.True(t, cfg.Resolume.Mock)

	t.Setenv("RESOLUME_OSC_PORT", "abc")
	_, _, _, err = Load(filepath.Join(t.TempDir(), FileName))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty host":     func(c *Config) { c.Resolume.Host = "" },
		"rest port zero": func(c *Config) { c.Resolume.RestPort = 0 },
		"osc port high":  func(c *Config) { c.Resolume.OSCPort = 70000 },
		"server low":     func(c *Config) { c.Server.Port = 80 },
		"poll too fast":  func(c *Config) { c.Status.PollIntervalMS = 10 },
		"bad timecode":   func(c *Config) { c.Timecode.Source = "ltc" },
	}
	for name, mutate := range cases {
		c := Default()
		mutate(&c)
		assert.ErrorIs(t, c.Validate(), ErrInvalid, name)
	}
	c := Default()
	assert.NoError(t, c.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	cfg, _, _, err := Load(path)
	require.NoError(t, err)

	updated, err := cfg.WithSettings(Settings{
		ResolumeHost:     " 192.168.1.20 ",
		ResolumeRestPort: 9090,
		ResolumeOSCPort:  7001,
		ServerPort:       3300,
	})
	require.NoError(t, err)
	require.NoError(t, updated.Save(path))

	loaded, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, Settings{
		ResolumeHost:     "192.168.1.20",
		ResolumeRestPort: 9090,
		ResolumeOSCPort:  7001,
		ServerPort:       3300,
	}, loaded.Settings())

	_, err = cfg.WithSettings(Settings{ResolumeHost: "x", ResolumeRestPort: 1, ResolumeOSCPort: 1, ServerPort: 80})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUserDataDirEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SHOWCALL_DATA_DIR", dir)

	got, err := UserDataDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}
