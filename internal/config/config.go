package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort                       = 5000
	DefaultMaxPayloadBytes            = 64 * 1024
	DefaultSendBuffer                 = 64
	DefaultMaxMessagesPerConversation = 10000
	DefaultMaxConversations           = 100000
	DefaultRatePerSecond              = 5
	DefaultRateBurst                  = 10
	DefaultAlertThrottleSeconds       = 300
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port:            DefaultPort,
			Bind:            "loopback",
			MaxPayloadBytes: DefaultMaxPayloadBytes,
			SendBuffer:      DefaultSendBuffer,
		},
		Chat: ChatConfig{
			Store:                      "memory",
			MaxMessagesPerConversation: DefaultMaxMessagesPerConversation,
			MaxConversations:           DefaultMaxConversations,
			OnExhausted:                "reject",
			RateLimit: RateLimitConfig{
				PerSecond: DefaultRatePerSecond,
				Burst:     DefaultRateBurst,
			},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
