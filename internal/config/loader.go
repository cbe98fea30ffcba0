package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets secrets be stored as ${ENV_VAR} references.
func expandSensitiveFields(cfg *Config) {
	cfg.Auth.JWTSecret = expandEnvVars(cfg.Auth.JWTSecret)
	if cfg.Alerts.IRC != nil {
		cfg.Alerts.IRC.Password = expandEnvVars(cfg.Alerts.IRC.Password)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	cfg, err = Parse(data)
	if err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// Parse decodes YAML over the defaults. Environment overrides and ${VAR}
// expansion are left to Load.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// SecretPaths lists the dotted keys whose values are redacted when printed.
var SecretPaths = []string{"auth.jwtSecret", "alerts.irc.password"}

// IsSecretPath reports whether key names a secret.
func IsSecretPath(key string) bool {
	for _, p := range SecretPaths {
		if p == key {
			return true
		}
	}
	return false
}

// Redacted returns a copy of cfg with secrets replaced by a placeholder.
func Redacted(cfg Config) Config {
	cfg.Auth.JWTSecret = RedactValue(cfg.Auth.JWTSecret)
	if cfg.Alerts.IRC != nil {
		irc := *cfg.Alerts.IRC
		irc.Password = RedactValue(irc.Password)
		cfg.Alerts.IRC = &irc
	}
	return cfg
}

// RedactValue masks a secret value. Unexpanded ${VAR} references are kept.
func RedactValue(s string) string {
	if s == "" || envVarPattern.FindString(s) == s {
		return s
	}
	return "********"
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.MaxPayloadBytes == 0 {
		cfg.Gateway.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if cfg.Gateway.SendBuffer == 0 {
		cfg.Gateway.SendBuffer = DefaultSendBuffer
	}
	if cfg.Chat.Store == "" {
		cfg.Chat.Store = "memory"
	}
	if cfg.Chat.MaxMessagesPerConversation == 0 {
		cfg.Chat.MaxMessagesPerConversation = DefaultMaxMessagesPerConversation
	}
	if cfg.Chat.MaxConversations == 0 {
		cfg.Chat.MaxConversations = DefaultMaxConversations
	}
	if cfg.Chat.OnExhausted == "" {
		cfg.Chat.OnExhausted = "reject"
	}
	if cfg.Chat.RateLimit.PerSecond == 0 {
		cfg.Chat.RateLimit.PerSecond = DefaultRatePerSecond
	}
	if cfg.Chat.RateLimit.Burst == 0 {
		cfg.Chat.RateLimit.Burst = DefaultRateBurst
	}
	if cfg.Alerts.IRC != nil && cfg.Alerts.IRC.ThrottleSeconds == 0 {
		cfg.Alerts.IRC.ThrottleSeconds = DefaultAlertThrottleSeconds
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads DESKCHAT_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DESKCHAT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("DESKCHAT_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("DESKCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DESKCHAT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DESKCHAT_CHAT_STORE"); v != "" {
		cfg.Chat.Store = strings.ToLower(v)
	}
}
