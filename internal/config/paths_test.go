package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr string
	}{
		{"chat", []string{"chat"}, ""},
		{"chat.store", []string{"chat", "store"}, ""},
		{"chat.rateLimit.burst", []string{"chat", "rateLimit", "burst"}, ""},
		{"alerts.irc", []string{"alerts", "irc"}, ""},
		{"alerts.irc.throttleSeconds", []string{"alerts", "irc", "throttleSeconds"}, ""},
		{"gateway.allowedOrigins", []string{"gateway", "allowedOrigins"}, ""},
		{"auth.allowGuests", []string{"auth", "allowGuests"}, ""},
		{"", nil, "empty config path"},
		{"chat..store", nil, "empty segment"},
		{".chat", nil, "empty segment"},
		{"alerts.", nil, "empty segment"},
		{"chats.store", nil, "unknown config key: chats"},
		{"alerts.slack", nil, "unknown config key: alerts.slack"},
		{"chat.store.kind", nil, "not a section"},
		{"alerts.irc.channel.topic", nil, "not a section"},
		{"chat.ratelimit.burst", nil, "unknown config key"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr != "" {
				var ce *ConfigError
				require.ErrorAs(t, err, &ce)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// deskchatRaw is a config file as LoadRaw returns it.
func deskchatRaw() map[string]any {
	return map[string]any{
		"chat": map[string]any{
			"store": "sqlite",
			"rateLimit": map[string]any{
				"perSecond": 2.5,
				"burst":     5,
			},
		},
		"alerts": map[string]any{
			"irc": map[string]any{
				"server":  "irc.libera.chat",
				"channel": "#support",
			},
		},
		"gateway": map[string]any{
			"allowedOrigins": []any{"https://shop.example"},
		},
	}
}

func TestGetValueAtPath(t *testing.T) {
	tests := []struct {
		key  string
		want any
		ok   bool
	}{
		{"chat.store", "sqlite", true},
		{"chat.rateLimit.perSecond", 2.5, true},
		{"alerts.irc.channel", "#support", true},
		{"gateway.allowedOrigins", []any{"https://shop.example"}, true},
		{"alerts.irc.password", nil, false},
		{"metrics.enabled", nil, false},
		{"chat.store.kind", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := GetValueAtPath(deskchatRaw(), strings.Split(tt.key, "."))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetValueAtPath(t *testing.T) {
	raw := deskchatRaw()

	SetValueAtPath(raw, []string{"chat", "rateLimit", "burst"}, 10)
	SetValueAtPath(raw, []string{"alerts", "irc", "sasl"}, true)
	SetValueAtPath(raw, []string{"metrics", "enabled"}, false)

	got, _ := GetValueAtPath(raw, []string{"chat", "rateLimit", "burst"})
	assert.Equal(t, 10, got)
	got, _ = GetValueAtPath(raw, []string{"chat", "rateLimit", "perSecond"})
	assert.Equal(t, 2.5, got, "siblings survive")
	got, _ = GetValueAtPath(raw, []string{"alerts", "irc", "sasl"})
	assert.Equal(t, true, got)
	got, _ = GetValueAtPath(raw, []string{"metrics", "enabled"})
	assert.Equal(t, false, got, "missing sections are created")
}

func TestSetValueAtPath_ReplacesScalarSection(t *testing.T) {
	raw := map[string]any{"alerts": "off"}

	SetValueAtPath(raw, []string{"alerts", "irc", "nick"}, "deskbot")
	got, ok := GetValueAtPath(raw, []string{"alerts", "irc", "nick"})
	require.True(t, ok)
	assert.Equal(t, "deskbot", got)
}

func TestUnsetValueAtPath(t *testing.T) {
	tests := []struct {
		name string
		path []string
		ok   bool
	}{
		{"leaf", []string{"alerts", "irc", "channel"}, true},
		{"whole section", []string{"chat", "rateLimit"}, true},
		{"absent leaf", []string{"alerts", "irc", "password"}, false},
		{"absent section", []string{"metrics", "enabled"}, false},
		{"through a value", []string{"chat", "store", "kind"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := deskchatRaw()
			assert.Equal(t, tt.ok, UnsetValueAtPath(raw, tt.path))
			_, still := GetValueAtPath(raw, tt.path)
			assert.False(t, still)

			store, _ := GetValueAtPath(raw, []string{"chat", "store"})
			assert.Equal(t, "sqlite", store)
		})
	}
}

func TestResolvePaths_DeskchatHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DESKCHAT_HOME", home)

	p, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, Paths{
		Base:   home,
		Config: filepath.Join(home, "config.yaml"),
		Logs:   filepath.Join(home, "logs"),
		Data:   filepath.Join(home, "data"),
		DB:     filepath.Join(home, "data", "deskchat.db"),
	}, p)
}

func TestResolvePaths_DefaultsUnderUserHome(t *testing.T) {
	t.Setenv("DESKCHAT_HOME", "")
	userHome, err := os.UserHomeDir()
	require.NoError(t, err)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(userHome, ".deskchat"), p.Base)
	assert.Equal(t, filepath.Join(userHome, ".deskchat", "data", "deskchat.db"), p.DB)
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("DESKCHAT_HOME", filepath.Join(t.TempDir(), "desk"))
	p, err := ResolvePaths()
	require.NoError(t, err)

	require.NoError(t, p.EnsureDirs())
	require.NoError(t, p.EnsureDirs())

	for _, dir := range []string{p.Base, p.Logs, p.Data} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		if runtime.GOOS != "windows" {
			assert.Equal(t, os.FileMode(0o700), info.Mode().Perm(), dir)
		}
	}
	_, err = os.Stat(p.DB)
	assert.True(t, os.IsNotExist(err), "the database file is left to the store")
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "gateway.tls.enabled")
	assert.Contains(t, keys, "chat.rateLimit.perSecond")
	assert.Contains(t, keys, "chat.closeSuperseded")
	assert.Contains(t, keys, "alerts.irc.throttleSeconds")
	assert.NotContains(t, keys, "alerts.irc")
	assert.IsIncreasing(t, keys)

	for _, k := range keys {
		_, err := ParseConfigPath(k)
		assert.NoError(t, err, k)
	}
	for _, k := range SecretPaths {
		assert.Contains(t, keys, k)
	}
}
