package config

const (
	defaultDataDir           = "~/.local/share/aditim"
	defaultLogDir            = "~/.local/share/aditim/logs"
	defaultAPIBind           = "127.0.0.1:7490"
	defaultAPIReadTimeout    = 15
	defaultAPIWriteTimeout   = 30
	defaultSendBuffer        = 64
	defaultWriteTimeout      = 5
	defaultPingInterval      = 30
	defaultRedisChannel      = "aditim:changes"
	defaultKafkaTopic        = "aditim.changes"
	defaultKafkaWriteTimeout = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			Bind:         defaultAPIBind,
			ReadTimeout:  defaultAPIReadTimeout,
			WriteTimeout: defaultAPIWriteTimeout,
		},
		Broadcast: Broadcast{
			SendBuffer:   defaultSendBuffer,
			WriteTimeout: defaultWriteTimeout,
			PingInterval: defaultPingInterval,
		},
		Relay: Relay{
			Redis: RedisRelay{Channel: defaultRedisChannel},
			Kafka: KafkaRelay{Topic: defaultKafkaTopic, WriteTimeout: defaultKafkaWriteTimeout},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
