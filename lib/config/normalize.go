package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	TimecodePoll = "poll"
	TimecodeOff  = "off"
)

func (c *Config) normalize(configDir string) error {
	if err := c.applyEnv(); err != nil {
		return err
	}

	c.Resolume.Host = strings.TrimSpace(c.Resolume.Host)
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = "0.0.0.0"
	}

	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = configDir
	}
	if c.Paths.DataDir, err = ExpandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Server.UIDir, err = ExpandPath(strings.TrimSpace(c.Server.UIDir)); err != nil {
		return fmt.Errorf("server.ui_dir: %w", err)
	}

	c.Timecode.Source = strings.ToLower(strings.TrimSpace(c.Timecode.Source))
	if c.Timecode.Source == "" {
		c.Timecode.Source = TimecodePoll
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// applyEnv honours the variables the bridge has always read.
func (c *Config) applyEnv() error {
	if v, ok := lookup("RESOLUME_HOST"); ok {
		c.Resolume.Host = v
	}
	for _, e := range []struct {
		name string
		dst  *int
	}{
		{"RESOLUME_REST_PORT", &c.Resolume.RestPort},
		{"RESOLUME_OSC_PORT", &c.Resolume.OSCPort},
		{"PORT", &c.Server.Port},
	} {
		v, ok := lookup(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, e.name, v)
		}
		*e.dst = n
	}
	if v, ok := lookup("MOCK"); ok {
		c.Resolume.Mock = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
