package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"signalcore/internal/domain"
)

func printEnvelope(cmd *cobra.Command, env domain.Envelope) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(env)
}

// readEnvelope takes the envelope JSON from arg, or from stdin when arg is
// empty or "-".
func readEnvelope(cmd *cobra.Command, arg string) (domain.Envelope, error) {
	var raw []byte
	if arg == "" || arg == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("read envelope: %w", err)
		}
		raw = b
	} else {
		raw = []byte(arg)
	}

	var env domain.Envelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &env); err != nil {
		return domain.Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	return env, nil
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func printMessage(cmd *cobra.Command, msg domain.DecryptedMessage) {
	if msg.SenderID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", msg.From, msg.SenderID, msg.Plaintext)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", msg.From, msg.Plaintext)
}
