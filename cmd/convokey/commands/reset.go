package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete your local key pair",
		Long: "Delete your local key pair. Messages encrypted under it can no longer be " +
			"read on this device, and group keys wrapped for it are lost.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete keys without --yes")
			}
			w, user, err := openOffline()
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.E2E.ResetKeys(user); err != nil {
				return err
			}
			fmt.Println("Key pair deleted. Run init to create a new one.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
