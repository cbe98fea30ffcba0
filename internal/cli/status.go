package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/soyeahso/deskchat/internal/config"
	"github.com/soyeahso/deskchat/internal/store"
	"github.com/soyeahso/deskchat/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show deskchat status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("deskchat %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Println("Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Gateway: port=%d bind=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.TLS.Enabled)
			fmt.Printf("Auth:    tokens=%v guests=%v trustDeclared=%v\n",
				cfg.Auth.JWTSecret != "", cfg.Auth.GuestsAllowed(), cfg.Auth.TrustDeclared)

			storeDesc := cfg.Chat.Store
			if cfg.Chat.Store == "sqlite" {
				db := cfg.Chat.DBPath
				if db == "" {
					db = paths.DB
				}
				storeDesc += " (" + db + ")"
			}
			fmt.Printf("Chat:    store=%s maxMessages=%d onExhausted=%s rate=%.1f/s burst=%d\n",
				storeDesc, cfg.Chat.MaxMessagesPerConversation, cfg.Chat.OnExhausted,
				cfg.Chat.RateLimit.PerSecond, cfg.Chat.RateLimit.Burst)
			if cfg.Chat.Store == "sqlite" {
				fmt.Printf("Store:   %s\n", describeStore(cmd.Context(), cfg))
			}

			if irc := cfg.Alerts.IRC; irc != nil {
				fmt.Printf("Alerts:  irc server=%s nick=%s channel=%s tls=%v\n",
					irc.Server, irc.Nick, irc.Channel, irc.UseTLS)
			} else {
				fmt.Println("Alerts:  (not configured)")
			}

			fmt.Printf("Server:  %s\n", checkHealth(cmd.Context(), cfg.Gateway))

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

// describeStore summarizes an existing SQLite store without creating one.
func describeStore(ctx context.Context, cfg config.Config) string {
	path := cfg.Chat.DBPath
	if path == "" {
		path = paths.DB
	}
	if _, err := os.Stat(path); err != nil {
		return "no database yet"
	}
	db, err := store.Open(path, log)
	if err != nil {
		return "error: " + err.Error()
	}
	defer db.Close()

	st, err := db.Stats(ctx)
	if err != nil {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("%d conversations (%d open), %d messages, schema v%d",
		st.Conversations, st.Open, st.Messages, st.SchemaVersion)
}

// checkHealth asks a locally running gateway for its health endpoint.
func checkHealth(ctx context.Context, gw config.GatewayConfig) string {
	scheme := "http"
	if gw.TLS.Enabled {
		scheme = "https"
	}
	host := "127.0.0.1"
	if gw.Bind == "custom" && gw.CustomBindHost != "" {
		host = gw.CustomBindHost
	}
	url := fmt.Sprintf("%s://%s:%d/health", scheme, host, gw.Port)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "unknown (" + err.Error() + ")"
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "not running at " + url
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status == "" {
		return fmt.Sprintf("unexpected response from %s (%d)", url, resp.StatusCode)
	}
	return body.Status + " at " + url
}
