package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"orion/internal/client/encryption"
)

// recv <peer>: read an envelope from stdin and print the plaintext.
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv <peer>",
		Short: "Decrypt an envelope from a peer (envelope JSON on stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			var env encryption.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return fmt.Errorf("parse envelope: %w", err)
			}

			pt, err := service.DecryptMessage(cmd.Context(), args[0], env)
			if err != nil {
				return err
			}
			fmt.Println(string(pt))
			return nil
		},
	}
}
