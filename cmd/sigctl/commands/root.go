package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"signalcore/internal/app"
	"signalcore/internal/domain"
	"signalcore/internal/logging"
)

var (
	home       string
	passphrase string
	keydirURL  string
	username   string
	logMode    string

	appCtx *app.Wire
	logger *zap.Logger
)

var errNoPassphrase = errors.New("passphrase required (-p or SIGNALCORE_PASSPHRASE)")

// Execute runs the sigctl root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "sigctl",
		Short:         "Signal-protocol sessions, sealed sender and groups from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			flags := cmd.Flags()
			if flags.Changed("home") {
				cfg.Home = home
			}
			if flags.Changed("keydir") {
				cfg.KeyDirURL = keydirURL
			}
			if flags.Changed("log-mode") {
				cfg.LogMode = logMode
			}
			if passphrase == "" {
				passphrase = os.Getenv("SIGNALCORE_PASSPHRASE")
			}

			var err error
			if logger, err = logging.New(cfg.LogMode); err != nil {
				return err
			}
			appCtx, err = app.NewWire(cfg, passphrase, logger)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			_ = logger.Sync()
			return appCtx.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.signalcore)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity key")
	root.PersistentFlags().StringVar(&keydirURL, "keydir", "", "key directory base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVarP(&username, "username", "u", "", "local account (default: the first one for this key directory)")
	root.PersistentFlags().StringVar(&logMode, "log-mode", "", "production or development")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		publishCmd(),
		startSessionCmd(),
		encryptCmd(),
		decryptCmd(),
		sealCmd(),
		unsealCmd(),
		safetyNumberCmd(),
		compareCmd(),
		groupCmd(),
	)
	return root.Execute()
}

func requirePassphrase() error {
	if passphrase == "" {
		return errNoPassphrase
	}
	return nil
}

// account loads the selected local profile.
func account() (domain.AccountProfile, error) {
	if err := requirePassphrase(); err != nil {
		return domain.AccountProfile{}, err
	}
	return appCtx.Account(domain.Username(username))
}
