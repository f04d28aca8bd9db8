package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateBroadcast(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind %q: %w", c.API.Bind, err)
	}
	if c.API.Token != "" && c.API.JWTSecret != "" {
		return errors.New("api.token and api.jwt_secret are mutually exclusive")
	}
	return nil
}

func (c *Config) validateBroadcast() error {
	if c.Broadcast.SendBuffer <= 0 {
		return errors.New("broadcast.send_buffer must be positive")
	}
	if c.Broadcast.WriteTimeout <= 0 {
		return errors.New("broadcast.write_timeout must be positive")
	}
	if c.Broadcast.PingInterval <= 0 {
		return errors.New("broadcast.ping_interval must be positive")
	}
	return nil
}

func (c *Config) validateRelay() error {
	if c.Relay.Redis.Enabled && c.Relay.Redis.Addr == "" {
		return errors.New("relay.redis.addr must be set when relay.redis.enabled is true")
	}
	if c.Relay.Redis.DB < 0 {
		return errors.New("relay.redis.db must be zero or positive")
	}
	if c.Relay.Kafka.Enabled && len(c.Relay.Kafka.Brokers) == 0 {
		return errors.New("relay.kafka.brokers must be set when relay.kafka.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}
