package config

// Config is the root configuration for the deskchat server.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Auth    AuthConfig    `yaml:"auth,omitempty"`
	Chat    ChatConfig    `yaml:"chat,omitempty"`
	Alerts  AlertsConfig  `yaml:"alerts,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket listener.
type GatewayConfig struct {
	Port            int        `yaml:"port,omitempty"`
	Bind            string     `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost  string     `yaml:"customBindHost,omitempty"`
	TLS             GatewayTLS `yaml:"tls,omitempty"`
	AllowedOrigins  []string   `yaml:"allowedOrigins,omitempty"`
	MaxPayloadBytes int64      `yaml:"maxPayloadBytes,omitempty"`
	SendBuffer      int        `yaml:"sendBuffer,omitempty"` // outbound frames queued per connection
}

// GatewayTLS configures TLS termination on the gateway listener.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// AuthConfig configures identity resolution at registration time.
type AuthConfig struct {
	// JWTSecret verifies HS256 tokens presented in register events.
	JWTSecret string `yaml:"jwtSecret,omitempty"`
	// AllowGuests lets clients without a token register as guest customers.
	AllowGuests *bool `yaml:"allowGuests,omitempty"`
	// TrustDeclared accepts client-declared participant ids and roles when no
	// token is presented. Development only.
	TrustDeclared bool `yaml:"trustDeclared,omitempty"`
}

// GuestsAllowed resolves the AllowGuests default (true).
func (a AuthConfig) GuestsAllowed() bool {
	return a.AllowGuests == nil || *a.AllowGuests
}

// ChatConfig controls the conversation store and routing limits.
type ChatConfig struct {
	Store                      string          `yaml:"store,omitempty"` // "memory" | "sqlite"
	DBPath                     string          `yaml:"dbPath,omitempty"`
	MaxMessagesPerConversation int             `yaml:"maxMessagesPerConversation,omitempty"`
	MaxConversations           int             `yaml:"maxConversations,omitempty"`
	OnExhausted                string          `yaml:"onExhausted,omitempty"` // "reject" | "disconnect"
	CloseSuperseded            *bool           `yaml:"closeSuperseded,omitempty"`
	RateLimit                  RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// SupersededClosed resolves the CloseSuperseded default (true).
func (c ChatConfig) SupersededClosed() bool {
	return c.CloseSuperseded == nil || *c.CloseSuperseded
}

// RateLimitConfig bounds inbound chat messages per connection.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"perSecond,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`
}

// AlertsConfig groups out-of-band notifications to the support team.
type AlertsConfig struct {
	IRC *IRCAlertConfig `yaml:"irc,omitempty"`
}

// IRCAlertConfig posts unattended-customer notices to an IRC channel.
type IRCAlertConfig struct {
	Server          string `yaml:"server"`
	Port            int    `yaml:"port,omitempty"`
	Nick            string `yaml:"nick"`
	Password        string `yaml:"password,omitempty"`
	Channel         string `yaml:"channel"`
	UseTLS          bool   `yaml:"useTLS,omitempty"`
	SASL            bool   `yaml:"sasl,omitempty"`
	ThrottleSeconds int    `yaml:"throttleSeconds,omitempty"` // per conversation
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled resolves the Enabled default (true).
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}
