package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"convokey/internal/crypto"
	"convokey/internal/domain"
)

func fingerprintCmd() *cobra.Command {
	var peer string
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print your fingerprint, or a peer's published one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if peer != "" {
				a, err := openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer a.Close()
				rec, ok, err := a.Directory.FetchPublicKey(cmd.Context(), domain.UserID(peer))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s has not published a key", peer)
				}
				fmt.Printf("Fingerprint: %s\nUpdated: %s\n", crypto.Fingerprint(rec.PublicKey), rec.UpdatedAt)
				return nil
			}

			w, user, err := openOffline()
			if err != nil {
				return err
			}
			defer w.Close()
			pair, ok, err := w.KeyPairs.LoadKeyPair(user)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no key pair for %s; run init", user)
			}
			fmt.Printf("Fingerprint: %s\n", crypto.Fingerprint(pair.PublicKey))
			return nil
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "fetch this user's published key instead")
	return cmd
}
