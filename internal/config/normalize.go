package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeBroadcast()
	c.normalizeRelay()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	if value, ok := os.LookupEnv("ADITIM_API_BIND"); ok && strings.TrimSpace(value) != "" {
		c.API.Bind = value
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("ADITIM_API_TOKEN"); ok {
			c.API.Token = value
		}
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.JWTSecret == "" {
		if value, ok := os.LookupEnv("ADITIM_JWT_SECRET"); ok {
			c.API.JWTSecret = value
		}
	}
	c.API.JWTSecret = strings.TrimSpace(c.API.JWTSecret)
	if c.API.ReadTimeout <= 0 {
		c.API.ReadTimeout = defaultAPIReadTimeout
	}
	if c.API.WriteTimeout <= 0 {
		c.API.WriteTimeout = defaultAPIWriteTimeout
	}
}

func (c *Config) normalizeBroadcast() {
	if c.Broadcast.SendBuffer == 0 {
		c.Broadcast.SendBuffer = defaultSendBuffer
	}
	if c.Broadcast.WriteTimeout == 0 {
		c.Broadcast.WriteTimeout = defaultWriteTimeout
	}
	if c.Broadcast.PingInterval == 0 {
		c.Broadcast.PingInterval = defaultPingInterval
	}
}

func (c *Config) normalizeRelay() {
	redis := &c.Relay.Redis
	if value, ok := os.LookupEnv("ADITIM_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		redis.Addr = value
		redis.Enabled = true
	}
	redis.Addr = strings.TrimSpace(redis.Addr)
	redis.Channel = strings.TrimSpace(redis.Channel)
	if redis.Channel == "" {
		redis.Channel = defaultRedisChannel
	}

	kafka := &c.Relay.Kafka
	if value, ok := os.LookupEnv("ADITIM_KAFKA_BROKERS"); ok && strings.TrimSpace(value) != "" {
		kafka.Brokers = strings.Split(value, ",")
		kafka.Enabled = true
	}
	brokers := make([]string, 0, len(kafka.Brokers))
	for _, broker := range kafka.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	kafka.Brokers = brokers
	kafka.Topic = strings.TrimSpace(kafka.Topic)
	if kafka.Topic == "" {
		kafka.Topic = defaultKafkaTopic
	}
	if kafka.WriteTimeout <= 0 {
		kafka.WriteTimeout = defaultKafkaWriteTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
