package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soyeahso/deskchat/internal/alert"
	"github.com/soyeahso/deskchat/internal/config"
	"github.com/soyeahso/deskchat/internal/conversation"
	"github.com/soyeahso/deskchat/internal/gateway"
	"github.com/soyeahso/deskchat/internal/hooks"
	"github.com/soyeahso/deskchat/internal/logging"
	"github.com/soyeahso/deskchat/internal/store"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the deskchat gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			runLog, closeLog, err := serverLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			hookMgr := hooks.NewManager(runLog)
			defer hookMgr.Wait()

			st, closeStore, err := openStore(cfg, runLog)
			if err != nil {
				return err
			}
			defer closeStore()

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Alerts.IRC != nil {
				stopAlerts := startAlerts(ctx, *cfg.Alerts.IRC, hookMgr, runLog)
				defer stopAlerts()
			}

			srv := gateway.New(cfg, runLog,
				gateway.WithStore(st),
				gateway.WithHooks(hookMgr),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// serverLogger builds the long-running server's logger. A relative
// logging.file is placed under the logs directory.
func serverLogger(cfg config.LoggingConfig) (*logging.Logger, func(), error) {
	opts := logging.Options{Level: cfg.Level, ConsoleStyle: cfg.ConsoleStyle}
	closer := func() {}

	if cfg.File != "" {
		path := cfg.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(paths.Logs, path)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		opts.File = f
		closer = func() { f.Close() }
	}
	return logging.NewWithOptions(opts), closer, nil
}

// openStore returns the configured conversation store and its closer.
func openStore(cfg config.Config, log *logging.Logger) (conversation.Store, func(), error) {
	limits := conversation.Limits{
		MaxMessagesPerConversation: cfg.Chat.MaxMessagesPerConversation,
		MaxConversations:           cfg.Chat.MaxConversations,
	}

	if cfg.Chat.Store != "sqlite" {
		log.Info().Msg("using in-memory conversation store")
		return conversation.NewMemoryStore(limits), func() {}, nil
	}

	db, err := openDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return store.NewConversationStore(db, limits), func() { db.Close() }, nil
}

func openDB(cfg config.Config, log *logging.Logger) (*store.DB, error) {
	dbPath := cfg.Chat.DBPath
	if dbPath == "" {
		dbPath = paths.DB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info().Str("path", dbPath).Msg("using SQLite conversation store")
	return db, nil
}

// startAlerts connects the IRC alert client in the background and subscribes
// the notifier to unattended-message hooks.
func startAlerts(ctx context.Context, cfg config.IRCAlertConfig, hm *hooks.Manager, log *logging.Logger) func() {
	client := alert.NewIRC(cfg, log)
	go func() {
		if err := client.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("IRC alert client exited")
		}
	}()

	throttle := time.Duration(cfg.ThrottleSeconds) * time.Second
	alert.NewNotifier(client, cfg.Channel, throttle, log).Register(hm)
	log.Info().Str("channel", cfg.Channel).Dur("throttle", throttle).Msg("unattended alerts enabled")

	return client.Stop
}
