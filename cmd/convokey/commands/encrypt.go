package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"convokey/internal/domain"
)

// encrypt <text>: print the encrypted body as JSON.
func encryptCmd() *cobra.Command {
	var peer, group string
	cmd := &cobra.Command{
		Use:   "encrypt <text>",
		Short: "Encrypt a message body for a peer or group",
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
			enc, err := a.E2E.EncryptMessageContent(cmd.Context(), args[0], mc)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(enc)
		},
	}
	conversationFlags(cmd, &peer, &group)
	return cmd
}

// decrypt <content>: print the plaintext, or the placeholder on failure.
func decryptCmd() *cobra.Command {
	var peer, group, format string
	cmd := &cobra.Command{
		Use:   "decrypt <content>",
		Short: "Decrypt a message body from a peer or group",
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
			fmt.Println(a.E2E.DecryptMessageContent(cmd.Context(), args[0], domain.ContentFormat(format), mc))
			return nil
		},
	}
	conversationFlags(cmd, &peer, &group)
	cmd.Flags().StringVar(&format, "format", string(domain.FormatE2E), "content format (e2e or plain)")
	return cmd
}
