package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Show the local identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := service.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Println(fp)
			return nil
		},
	}
}
