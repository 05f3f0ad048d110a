package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"support-chat/internal/chatsync"
	"support-chat/internal/client"
	"support-chat/internal/domain/conversation"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Support agent commands",
}

var adminInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List every conversation, most recent activity first",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, token, err := resolveEndpoint()
		if err != nil {
			return err
		}
		store, err := client.NewStoreClient(server, token)
		if err != nil {
			return err
		}
		items, err := store.ListSummaries(cmd.Context())
		if err != nil {
			return err
		}
		printInbox(items)
		return nil
	},
}

var adminConsoleCmd = &cobra.Command{
	Use:   "console [conversation-id]",
	Short: "Live admin console",
	Long: "Follows the inbox and one selected conversation. Type a line to reply.\n" +
		"Commands: /inbox, /select <id>, /close [id], /reopen [id], /delete [id], /refresh, /quit.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r, err := connect(ctx)
		if err != nil {
			return err
		}
		defer r.Close()

		isAdmin, err := r.store.IsAdmin(ctx)
		if err != nil {
			return err
		}
		if !isAdmin {
			return fmt.Errorf("user %s is not an admin", r.user)
		}

		out := newTranscript(r.user)
		c := chatsync.NewAdminConsole(r.store, r.bus, r.user, sessionOptions())
		defer c.Close()
		c.OnChange(func(st chatsync.ConsoleState) {
			out.show(st.Messages)
		})
		c.Open(ctx)
		printInbox(c.State().Inbox)

		if len(args) == 1 {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid conversation id: %w", err)
			}
			selectConversation(ctx, c, out, id)
		}

		readLines(ctx, func(line string) bool {
			if !strings.HasPrefix(line, "/") {
				if c.State().Selected == uuid.Nil {
					out.notice("select a conversation first")
					return true
				}
				if c.State().SelectedStatus == conversation.StatusClosed {
					out.notice("this conversation is closed")
					return true
				}
				if !c.Send(ctx, line) {
					out.notice("send failed")
				}
				return true
			}

			verb, arg, _ := strings.Cut(line, " ")
			target := c.State().Selected
			if arg = strings.TrimSpace(arg); arg != "" {
				id, err := uuid.Parse(arg)
				if err != nil {
					out.notice("invalid id %q", arg)
					return true
				}
				target = id
			}

			switch verb {
			case "/quit":
				return false
			case "/inbox":
				c.RefreshInbox(ctx)
				printInbox(c.State().Inbox)
			case "/refresh":
				c.RefreshMessages(ctx)
			case "/select":
				selectConversation(ctx, c, out, target)
			case "/close":
				report(out, "closed", target, c.CloseConversation(ctx, target))
			case "/reopen":
				report(out, "reopened", target, c.Reopen(ctx, target))
			case "/delete":
				report(out, "deleted", target, c.Delete(ctx, target))
			default:
				out.notice("unknown command %s", verb)
			}
			return true
		})
		return nil
	},
}

func selectConversation(ctx context.Context, c *chatsync.AdminConsole, out *transcript, id uuid.UUID) {
	out.reset()
	c.Select(ctx, id)
	st := c.State()
	if st.Selected == uuid.Nil {
		return
	}
	out.notice("conversation %s (%s)", st.Selected, st.SelectedStatus)
	out.show(st.Messages)
}

func report(out *transcript, what string, id uuid.UUID, ok bool) {
	if id == uuid.Nil {
		out.notice("no conversation selected")
		return
	}
	if !ok {
		out.notice("conversation %s could not be %s", id, what)
		return
	}
	out.notice("conversation %s %s", id, what)
}

func printInbox(items []conversation.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCUSTOMER\tSTATUS\tLAST ACTIVITY")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.ID, it.UserEmail, it.Status, it.LastMessageAt.Local().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	adminCmd.AddCommand(adminInboxCmd, adminConsoleCmd)
	rootCmd.AddCommand(adminCmd)
}
