package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate key material and upload the public half",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service.Initialize(cmd.Context()); err != nil {
				return err
			}
			fp, err := service.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Printf("Identity ready.\nFingerprint: %s\n", fp)
			return nil
		},
	}
}
