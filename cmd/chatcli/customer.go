package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"support-chat/internal/chatsync"
)

var customerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Chat with support as the token's user",
	Long: "Opens the customer chat widget. Type a line to send it.\n" +
		"Commands: /new starts a new conversation, /quit exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r, err := connect(ctx)
		if err != nil {
			return err
		}
		defer r.Close()

		out := newTranscript(r.user)
		w := chatsync.NewCustomerWidget(r.store, r.bus, r.user, sessionOptions())
		defer w.Close()

		w.OnChange(func(st chatsync.WidgetState) {
			out.show(st.Messages)
			out.showStatus(st.Status)
		})

		if !w.Open(ctx) {
			return fmt.Errorf("could not open a conversation")
		}
		out.notice("conversation %s", w.State().ConversationID)

		readLines(ctx, func(line string) bool {
			switch line {
			case "/quit":
				return false
			case "/new":
				out.reset()
				if !w.StartNew(ctx) {
					out.notice("could not open a conversation")
					return true
				}
				out.notice("conversation %s", w.State().ConversationID)
			default:
				if !w.State().CanSend() {
					out.notice("this conversation is closed")
					return true
				}
				if !w.Send(ctx, line) {
					out.notice("send failed")
				}
			}
			return true
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(customerCmd)
}
