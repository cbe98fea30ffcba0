package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/deskchat/internal/config"
	"github.com/soyeahso/deskchat/internal/conversation"
	"github.com/soyeahso/deskchat/internal/domain"
	"github.com/soyeahso/deskchat/internal/store"
	"github.com/spf13/cobra"
)

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect conversations in the SQLite store",
	}

	cmd.AddCommand(newConversationsListCmd())
	cmd.AddCommand(newConversationsHistoryCmd())
	cmd.AddCommand(newConversationsSearchCmd())
	return cmd
}

// withConversationStore opens the configured SQLite store for a read-only
// command.
func withConversationStore(fn func(st *store.ConversationStore) error) error {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}
	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(store.NewConversationStore(db, conversation.Limits{}))
}

func newConversationsListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConversationStore(func(st *store.ConversationStore) error {
				convs, err := st.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), convs)
				}
				return writeConversations(cmd.OutOrStdout(), convs)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newConversationsHistoryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <conversationId>",
		Short: "Print a conversation's messages in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConversationStore(func(st *store.ConversationStore) error {
				msgs, err := st.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), msgs)
				}
				writeMessages(cmd.OutOrStdout(), msgs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newConversationsSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across stored messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConversationStore(func(st *store.ConversationStore) error {
				msgs, err := st.Search(cmd.Context(), strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				writeMessages(cmd.OutOrStdout(), msgs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func writeConversations(w io.Writer, convs []domain.Conversation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tSTATUS\tAGENT\tMESSAGES\tUPDATED")
	for _, c := range convs {
		agent := c.AssignedAgentID
		if agent == "" {
			agent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			c.ID, c.CustomerName, c.Status, agent, c.MessageCount, c.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func writeMessages(w io.Writer, msgs []domain.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "(no messages)")
		return
	}
	for _, m := range msgs {
		name := m.FromName
		if name == "" {
			name = m.From
		}
		fmt.Fprintf(w, "[%s] %s #%d %s (%s): %s\n",
			m.Timestamp.Local().Format(time.DateTime), m.ConversationID, m.SequenceNumber, name, m.Role, m.Text)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
