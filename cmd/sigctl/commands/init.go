package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"signalcore/internal/domain"
	"signalcore/internal/services/identity"
)

func initCmd() *cobra.Command {
	var (
		e164   string
		device uint32
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init <username>",
		Short: "Generate identity keys and store them securely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := identity.ValidatePassphrase(passphrase); err != nil {
				return err
			}
			profile, fp, err := appCtx.Init(cmd.Context(), domain.Username(args[0]), e164, device, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Identity created.\nFingerprint: %s\nUUID: %s\n", fp, profile.UUID)
			return nil
		},
	}
	cmd.Flags().StringVar(&e164, "e164", "", "phone number to embed in sender certificates")
	cmd.Flags().Uint32Var(&device, "device", domain.DefaultDeviceID, "device id")
	cmd.Flags().BoolVar(&force, "force", false, "rotate an existing identity")
	return cmd
}
