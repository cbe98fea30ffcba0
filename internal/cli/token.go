package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/deskchat/internal/auth"
	"github.com/soyeahso/deskchat/internal/config"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		name string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <participantId>",
		Short: "Mint a signed registration token",
		Long:  "Mint an HS256 token that a client presents in its register event. Requires auth.jwtSecret.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwtSecret is not set")
			}

			r := domain.ParseRole(role)
			if r == domain.RoleOther {
				return fmt.Errorf("unknown role %q (use customer or agent)", role)
			}

			resolver := auth.NewResolver(auth.Options{Secret: []byte(cfg.Auth.JWTSecret)})
			tok, err := resolver.Issue(args[0], name, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().StringVar(&role, "role", "agent", "role claim (customer or agent)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}
