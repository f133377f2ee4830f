package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish fresh pre-keys to the key directory and refresh the sender certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := account()
			if err != nil {
				return err
			}
			bundle, err := appCtx.Publish(cmd.Context(), &profile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Published signed pre-key %d and %d one-time pre-keys for %s.%d\n",
				bundle.SignedPreKey.ID, len(bundle.OneTimePreKeys), profile.Username, profile.DeviceID)
			if bundle.KyberPreKey != nil {
				fmt.Fprintf(out, "Kyber pre-key %d\n", bundle.KyberPreKey.ID)
			}
			return nil
		},
	}
}
