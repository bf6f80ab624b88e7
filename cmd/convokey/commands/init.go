package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"convokey/internal/crypto"
	"convokey/internal/services/e2e"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate your key pair and publish the public half",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.E2E.EnsureUserKeyPair(cmd.Context(), a.User)
			if err != nil && !errors.Is(err, e2e.ErrPublishFailed) {
				return err
			}
			pair, _, lerr := a.KeyPairs.LoadKeyPair(a.User)
			if lerr != nil {
				return lerr
			}
			state, serr := a.E2E.KeyState(a.User)
			if serr != nil {
				return serr
			}
			fmt.Printf("Key pair ready.\nFingerprint: %s\nState: %s\n", crypto.Fingerprint(pair.PublicKey), state)
			return err
		},
	}
}
