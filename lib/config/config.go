// Package config loads the bridge settings from a TOML file in the user
// data directory.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const FileName = "config.toml"

var ErrInvalid = errors.New("invalid config")

type Resolume struct {
	Host         string `toml:"host"`
	RestPort     int    `toml:"rest_port"`
	OSCPort      int    `toml:"osc_port"`
	OSCLocalPort int    `toml:"osc_local_port"`
	Mock         bool   `toml:"mock"`
}

type Server struct {
	Port  int    `toml:"port"`
	Bind  string `toml:"bind"`
	UIDir string `toml:"ui_dir"`
}

type Paths struct {
	DataDir string `toml:"data_dir"`
}

type Status struct {
	PollIntervalMS    int `toml:"poll_interval_ms"`
	ConnectionCheckMS int `toml:"connection_check_ms"`
	RequestTimeoutMS  int `toml:"request_timeout_ms"`
}

type Timecode struct {
	Source string `toml:"source"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Surfaces struct {
	StreamDeck  bool   `toml:"streamdeck"`
	XTouch      bool   `toml:"xtouch"`
	XTouchPort  string `toml:"xtouch_port"`
	GoLockoutMS int    `toml:"go_lockout_ms"`
}

type Config struct {
	Resolume Resolume `toml:"resolume"`
	Server   Server   `toml:"server"`
	Paths    Paths    `toml:"paths"`
	Status   Status   `toml:"status"`
	Timecode Timecode `toml:"timecode"`
	Logging  Logging  `toml:"logging"`
	Surfaces Surfaces `toml:"surfaces"`
}

func Default() Config {
	return Config{
		Resolume: Resolume{
			Host:         "localhost",
			RestPort:     8080,
			OSCPort:      7000,
			OSCLocalPort: 57121,
		},
		Server: Server{Port: 3200, Bind: "0.0.0.0"},
		Status: Status{
			PollIntervalMS:    1000,
			ConnectionCheckMS: 3000,
			RequestTimeoutMS:  5000,
		},
		Timecode: Timecode{Source: TimecodePoll},
		Logging:  Logging{Level: "info"},
		Surfaces: Surfaces{GoLockoutMS: 500},
	}
}

// UserDataDir is $SHOWCALL_DATA_DIR, or the per-OS application data
// directory.
func UserDataDir() (string, error) {
	for _, env := range []string{"SHOWCALL_DATA_DIR", "SERVER_USER_DATA"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return ExpandPath(v)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "ShowCall"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "ShowCall"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "ShowCall"), nil
	}
	return filepath.Join(home, ".showcall"), nil
}

func DefaultPath() (string, error) {
	dir, err := UserDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads path, or the default location when path is empty. A
// missing file yields defaults; exists reports whether it was found.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := Default()

	if path == "" {
		if path, err = DefaultPath(); err != nil {
			return nil, "", false, err
		}
	}
	if path, err = ExpandPath(path); err != nil {
		return nil, "", false, err
	}

	file, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, "", false, fmt.Errorf("open config: %w", err)
	default:
		exists = true
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.normalize(filepath.Dir(path)); err != nil {
		return nil, "", false, err
	}
	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}
	return &c, path, exists, nil
}

// LoadOrSeed is Load, writing the sample file first when none exists.
func LoadOrSeed(path string) (*Config, string, error) {
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		if err := CreateSample(resolved); err != nil {
			return nil, "", err
		}
	}
	return cfg, resolved, nil
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Save writes c to path, replacing the file atomically.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Status.PollIntervalMS) * time.Millisecond
}

func (c *Config) ConnectionCheckInterval() time.Duration {
	return time.Duration(c.Status.ConnectionCheckMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Status.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) GoLockout() time.Duration {
	return time.Duration(c.Surfaces.GoLockoutMS) * time.Millisecond
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Settings is the subset the operator edits from the UI.
type Settings struct {
	ResolumeHost     string `json:"resolumeHost"`
	ResolumeRestPort int    `json:"resolumeRestPort"`
	ResolumeOSCPort  int    `json:"resolumeOscPort"`
	ServerPort       int    `json:"serverPort"`
}

func (c *Config) Settings() Settings {
	return Settings{
		ResolumeHost:     c.Resolume.Host,
		ResolumeRestPort: c.Resolume.RestPort,
		ResolumeOSCPort:  c.Resolume.OSCPort,
		ServerPort:       c.Server.Port,
	}
}

// WithSettings returns a copy of c with s applied and validated.
func (c Config) WithSettings(s Settings) (Config, error) {
	c.Resolume.Host = strings.TrimSpace(s.ResolumeHost)
	c.Resolume.RestPort = s.ResolumeRestPort
	c.Resolume.OSCPort = s.ResolumeOSCPort
	c.Server.Port = s.ServerPort
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ExpandPath resolves a leading ~ and makes pathValue absolute.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
