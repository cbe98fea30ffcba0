package config

import (
	"fmt"
	"slices"

	"github.com/soyeahso/deskchat/internal/logging"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind: custom",
		})
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}
	if cfg.Gateway.MaxPayloadBytes < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.maxPayloadBytes",
			Message: "must not be negative",
		})
	}
	if cfg.Gateway.SendBuffer < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.sendBuffer",
			Message: "must not be negative",
		})
	}

	// Auth validation
	if cfg.Auth.JWTSecret != "" && len(cfg.Auth.JWTSecret) < 16 {
		issues = append(issues, ValidationIssue{
			Path:    "auth.jwtSecret",
			Message: "must be at least 16 characters",
		})
	}

	// Chat validation
	validStores := []string{"memory", "sqlite"}
	if cfg.Chat.Store != "" && !slices.Contains(validStores, cfg.Chat.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "chat.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Chat.Store),
		})
	}
	validExhausted := []string{"reject", "disconnect"}
	if cfg.Chat.OnExhausted != "" && !slices.Contains(validExhausted, cfg.Chat.OnExhausted) {
		issues = append(issues, ValidationIssue{
			Path:    "chat.onExhausted",
			Message: fmt.Sprintf("must be one of %v, got %q", validExhausted, cfg.Chat.OnExhausted),
		})
	}
	if cfg.Chat.MaxMessagesPerConversation < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "chat.maxMessagesPerConversation",
			Message: "must not be negative",
		})
	}
	if cfg.Chat.MaxConversations < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "chat.maxConversations",
			Message: "must not be negative",
		})
	}
	if cfg.Chat.RateLimit.PerSecond < 0 || cfg.Chat.RateLimit.Burst < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "chat.rateLimit",
			Message: "perSecond and burst must not be negative",
		})
	}

	// Logging validation
	if cfg.Logging.Level != "" && !logging.ValidLevel(cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", logging.Levels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// IRC alert validation (only if configured)
	if cfg.Alerts.IRC != nil {
		irc := cfg.Alerts.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{
				Path:    "alerts.irc.server",
				Message: "server is required",
			})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{
				Path:    "alerts.irc.nick",
				Message: "nick is required",
			})
		}
		if irc.Channel == "" {
			issues = append(issues, ValidationIssue{
				Path:    "alerts.irc.channel",
				Message: "channel is required",
			})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "alerts.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "alerts.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	return issues
}
