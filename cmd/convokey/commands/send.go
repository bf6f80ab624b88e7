package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"convokey/internal/domain"
)

// send <message>: encrypt and store a message.
func sendCmd() *cobra.Command {
	var peer, group string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Encrypt and store a message for a peer or group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			mc, err := a.Context(domain.UserID(peer), domain.GroupID(group))
			if err != nil {
				return err
			}
			msg, err := a.Messages.Send(cmd.Context(), mc, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("sent %s (%s)\n", msg.ID, msg.ContentFormat)
			return nil
		},
	}
	conversationFlags(cmd, &peer, &group)
	return cmd
}

// history: print a conversation, oldest first.
func historyCmd() *cobra.Command {
	var peer, group string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a conversation, decrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			mc, err := a.Context(domain.UserID(peer), domain.GroupID(group))
			if err != nil {
				return err
			}
			msgs, err := a.Messages.History(cmd.Context(), mc, limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				lock := " "
				if m.Encrypted {
					lock = "*"
				}
				fmt.Printf("%s %s %s: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), lock, m.SenderID, m.Text)
			}
			return nil
		},
	}
	conversationFlags(cmd, &peer, &group)
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of recent messages (0 for all)")
	return cmd
}
