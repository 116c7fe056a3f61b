package config

import (
	"fmt"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Resolume.Host == "" {
		return fmt.Errorf("%w: resolume.host is required", ErrInvalid)
	}
	if err := port("resolume.rest_port", c.Resolume.RestPort, 1); err != nil {
		return err
	}
	if err := port("resolume.osc_port", c.Resolume.OSCPort, 1); err != nil {
		return err
	}
	if err := port("resolume.osc_local_port", c.Resolume.OSCLocalPort, 0); err != nil {
		return err
	}
	if err := port("server.port", c.Server.Port, 1024); err != nil {
		return err
	}
	if c.Status.PollIntervalMS < 100 {
		return fmt.Errorf("%w: status.poll_interval_ms must be at least 100", ErrInvalid)
	}
	if c.Status.ConnectionCheckMS < 0 || c.Status.RequestTimeoutMS <= 0 {
		return fmt.Errorf("%w: status intervals must be positive", ErrInvalid)
	}
	if !slices.Contains([]string{TimecodePoll, TimecodeOff}, c.Timecode.Source) {
		return fmt.Errorf("%w: timecode.source must be poll or off", ErrInvalid)
	}
	if c.Surfaces.GoLockoutMS < 0 {
		return fmt.Errorf("%w: surfaces.go_lockout_ms must not be negative", ErrInvalid)
	}
	return nil
}

func port(name string, v, lowest int) error {
	if v < lowest || v > 65535 {
		return fmt.Errorf("%w: %s must be between %d and 65535", ErrInvalid, name, lowest)
	}
	return nil
}
