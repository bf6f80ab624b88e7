package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"convokey/internal/app"
	"convokey/internal/domain"
	"convokey/internal/logger"
)

var (
	configPath string
	passphrase string
	username   string

	cfg app.Config
	log *zap.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "convokey",
		Short:         "End-to-end encryption keys for conversations and groups",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			if cfg, err = app.ParseConfig(v); err != nil {
				return err
			}
			log, err = logger.New(cfg.Log)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.String("home", "", "config dir (default ~/.convokey)")
	pf.String("directory", "", "key directory base URL (e.g. http://127.0.0.1:8080)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the local key store")
	pf.StringVarP(&username, "user", "u", "", "your user ID")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		encryptCmd(),
		decryptCmd(),
		sendCmd(),
		historyCmd(),
		membersCmd(),
		resetCmd(),
	)
	return root.Execute()
}

// bindFlags lets explicitly set flags override file and environment values.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for flag, key := range map[string]string{
		"home":      "home",
		"directory": "directory.url",
		"log-level": "log.level",
	} {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func currentUser() (domain.UserID, error) {
	if username == "" {
		return "", errors.New("user required (-u)")
	}
	return domain.UserID(username), nil
}

// openApp logs the current user in to the key directory.
func openApp(ctx context.Context) (*app.App, error) {
	user, err := currentUser()
	if err != nil {
		return nil, err
	}
	a, err := app.Open(ctx, cfg, passphrase, user, log)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", user, err)
	}
	return a, nil
}

// openOffline builds the wiring without contacting the directory.
func openOffline() (*app.Wire, domain.UserID, error) {
	user, err := currentUser()
	if err != nil {
		return nil, "", err
	}
	w, err := app.NewWire(cfg, passphrase, log)
	if err != nil {
		return nil, "", err
	}
	return w, user, nil
}

// conversationFlags registers --peer/--group on cmd.
func conversationFlags(cmd *cobra.Command, peer, group *string) {
	cmd.Flags().StringVar(peer, "peer", "", "the other user of a 1:1 conversation")
	cmd.Flags().StringVar(group, "group", "", "group ID")
}
