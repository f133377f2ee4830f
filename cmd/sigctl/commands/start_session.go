package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"signalcore/internal/domain"
)

// startSessionCmd fetches a peer's bundle and runs the initiator handshake.
func startSessionCmd() *cobra.Command {
	var device uint32
	cmd := &cobra.Command{
		Use:   "start-session <peer>",
		Short: "Establish a secure session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			peer := domain.NewProtocolAddress(args[0], device)
			if err := appCtx.StartSession(cmd.Context(), peer); err != nil {
				return fmt.Errorf("starting session with %s: %w", peer, err)
			}
			version, err := appCtx.Messages.SessionVersion(cmd.Context(), peer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session created with %s (version %d).\n", peer, version)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&device, "device", domain.DefaultDeviceID, "peer device id")
	return cmd
}
