// Package alert posts notices about unattended customers to the support
// team's IRC channel using the girc library.
package alert

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/deskchat/internal/config"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/version"
)

// ErrNotConnected is returned by Send before the IRC session is up.
var ErrNotConnected = errors.New("irc: not connected")

// IRC is a send-only IRC client that joins one alert channel.
type IRC struct {
	cfg    config.IRCAlertConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	running bool
	lastErr string
}

// NewIRC creates an IRC alert client from configuration.
func NewIRC(cfg config.IRCAlertConfig, log *logging.Logger) *IRC {
	return &IRC{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

// Start connects to the server and blocks until the connection ends or ctx
// is cancelled.
func (c *IRC) Start(ctx context.Context) error {
	port := c.cfg.Port
	if port == 0 {
		if c.cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    port,
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "deskchat alerts",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", port).
		Str("nick", c.cfg.Nick).
		Str("channel", c.cfg.Channel).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop quits the IRC session.
func (c *IRC) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("deskchat shutting down")
	}
	c.running = false
}

// Connected reports whether the session is registered with the server.
func (c *IRC) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnected()
}

// Send posts text to target, one PRIVMSG per line.
func (c *IRC) Send(target, text string) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}
	if target == "" {
		return fmt.Errorf("irc: no target specified")
	}

	lines := splitMessage(text, 400)
	for _, line := range lines {
		client.Cmd.Message(target, line)
	}
	c.log.Debug().Str("to", target).Int("lines", len(lines)).Msg("sent IRC alert")
	return nil
}

func (c *IRC) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	if c.cfg.Channel != "" {
		client.Cmd.Join(c.cfg.Channel)
		c.log.Info().Str("channel", c.cfg.Channel).Msg("joined alert channel")
	}
}

func (c *IRC) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// splitMessage breaks text into chunks that fit an IRC line. Every newline
// starts a new chunk and blank lines are dropped.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
