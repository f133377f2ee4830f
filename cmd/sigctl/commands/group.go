package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"signalcore/internal/domain"
)

func groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Sender-key group messaging",
	}
	cmd.AddCommand(groupInviteCmd(), groupJoinCmd(), groupEncryptCmd(), groupDecryptCmd())
	return cmd
}

func groupInviteCmd() *cobra.Command {
	var device uint32
	cmd := &cobra.Command{
		Use:   "invite <group-id> <peer>",
		Short: "Send our sender key for a group to a peer over the pairwise session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := account()
			if err != nil {
				return err
			}
			env, err := appCtx.GroupInvite(cmd.Context(), &profile, args[0], domain.NewProtocolAddress(args[1], device))
			if err != nil {
				return err
			}
			return printEnvelope(cmd, env)
		},
	}
	cmd.Flags().Uint32Var(&device, "device", domain.DefaultDeviceID, "peer device id")
	return cmd
}

func groupJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <group-id> [envelope-json|-]",
		Short: "Install a member's sender key from an invite envelope",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := account()
			if err != nil {
				return err
			}
			env, err := readEnvelope(cmd, optionalArg(args[1:]))
			if err != nil {
				return err
			}
			from, err := appCtx.GroupJoin(cmd.Context(), profile, args[0], env)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Joined %s: accepted sender key from %s\n", args[0], from)
			return nil
		},
	}
}

func groupEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <group-id> <message>",
		Short: "Encrypt one message for every member of a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := account()
			if err != nil {
				return err
			}
			env, err := appCtx.GroupSeal(cmd.Context(), profile, args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			return printEnvelope(cmd, env)
		},
	}
}

func groupDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <group-id> [envelope-json|-]",
		Short: "Decrypt a group envelope",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			env, err := readEnvelope(cmd, optionalArg(args[1:]))
			if err != nil {
				return err
			}
			msg, err := appCtx.GroupOpen(cmd.Context(), args[0], env)
			if err != nil {
				return err
			}
			printMessage(cmd, msg)
			return nil
		},
	}
}
