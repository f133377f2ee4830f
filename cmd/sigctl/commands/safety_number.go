package commands

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"signalcore/internal/domain"
)

var errSafetyMismatch = errors.New("safety numbers do not match")

func safetyNumberCmd() *cobra.Command {
	var device uint32
	cmd := &cobra.Command{
		Use:   "safety-number <peer>",
		Short: "Print the safety number shared with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := account()
			if err != nil {
				return err
			}
			fp, err := appCtx.SafetyNumber(cmd.Context(), profile, domain.NewProtocolAddress(args[0], device))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Safety number: %s\nScannable: %s\n",
				groupDigits(fp.Display.String()), base64.StdEncoding.EncodeToString(fp.Scannable.Serialize()))
			return nil
		},
	}
	cmd.Flags().Uint32Var(&device, "device", domain.DefaultDeviceID, "peer device id")
	return cmd
}

func compareCmd() *cobra.Command {
	var device uint32
	cmd := &cobra.Command{
		Use:   "compare <peer> <scannable-base64>",
		Short: "Check a peer's scannable safety number against ours",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := account()
			if err != nil {
				return err
			}
			theirs, err := base64.StdEncoding.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("decode scannable: %w", err)
			}
			fp, err := appCtx.SafetyNumber(cmd.Context(), profile, domain.NewProtocolAddress(args[0], device))
			if err != nil {
				return err
			}
			ok, err := fp.Scannable.Compare(theirs)
			if err != nil {
				return err
			}
			if !ok {
				return errSafetyMismatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Safety numbers match.")
			return nil
		},
	}
	cmd.Flags().Uint32Var(&device, "device", domain.DefaultDeviceID, "peer device id")
	return cmd
}

// groupDigits splits the 60 digits into blocks of five.
func groupDigits(s string) string {
	out := make([]byte, 0, len(s)+len(s)/5)
	for i := 0; i < len(s); i++ {
		if i > 0 && i%5 == 0 {
			out = append(out, ' ')
		}
		out = append(out, s[i])
	}
	return string(out)
}
