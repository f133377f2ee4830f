package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"signalcore/internal/domain"
)

func encryptCmd() *cobra.Command {
	var (
		device uint32
		sealed bool
	)
	cmd := &cobra.Command{
		Use:   "encrypt <peer> <message>",
		Short: "Encrypt a message for a peer and print the envelope",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return seal(cmd, domain.NewProtocolAddress(args[0], device), args[1], sealed)
		},
	}
	cmd.Flags().Uint32Var(&device, "device", domain.DefaultDeviceID, "peer device id")
	cmd.Flags().BoolVar(&sealed, "sealed", false, "hide the sender inside the envelope")
	return cmd
}

func sealCmd() *cobra.Command {
	var device uint32
	cmd := &cobra.Command{
		Use:   "seal <peer> <message>",
		Short: "Encrypt a sealed-sender message for a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return seal(cmd, domain.NewProtocolAddress(args[0], device), args[1], true)
		},
	}
	cmd.Flags().Uint32Var(&device, "device", domain.DefaultDeviceID, "peer device id")
	return cmd
}

func seal(cmd *cobra.Command, peer domain.ProtocolAddress, text string, sealed bool) error {
	profile, err := account()
	if err != nil {
		return err
	}
	env, err := appCtx.Seal(cmd.Context(), &profile, peer, []byte(text), sealed)
	if err != nil {
		return fmt.Errorf("encrypt for %s: %w", peer, err)
	}
	return printEnvelope(cmd, env)
}

func decryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [envelope-json|-]",
		Short: "Decrypt an envelope (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return open(cmd, optionalArg(args), false)
		},
	}
}

func unsealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unseal [envelope-json|-]",
		Short: "Decrypt a sealed-sender envelope and show who sent it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return open(cmd, optionalArg(args), true)
		},
	}
}

func open(cmd *cobra.Command, arg string, requireSealed bool) error {
	profile, err := account()
	if err != nil {
		return err
	}
	env, err := readEnvelope(cmd, arg)
	if err != nil {
		return err
	}
	if requireSealed && !env.Sealed {
		return errors.New("envelope is not sealed")
	}
	msg, err := appCtx.Open(cmd.Context(), profile, env)
	if err != nil {
		return err
	}
	printMessage(cmd, msg)
	return nil
}
