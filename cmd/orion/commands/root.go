// Package commands implements the orion client CLI. Each device keeps
// its key material under the home directory, one store per user.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"orion/internal/client/api"
	"orion/internal/client/encryption"
	"orion/internal/client/store"
)

var (
	home      string
	server    string
	user      string
	useSQLite bool

	service *encryption.Service
	logger  *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "orion",
		Short:         "End-to-end encrypted messaging CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
				Level:      slog.LevelInfo,
				TimeFormat: time.Kitchen,
			}))

			if user == "" {
				return fmt.Errorf("user required (--user)")
			}
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".orion")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var backend store.Store
			var err error
			if useSQLite {
				backend, err = store.NewSQLiteStore(filepath.Join(home, user+".db"))
			} else {
				backend, err = store.NewFileStore(filepath.Join(home, user+".json"))
			}
			if err != nil {
				return err
			}

			service = encryption.NewService(user, store.NewSessionStore(backend), api.NewClient(server), logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.orion)")
	root.PersistentFlags().StringVar(&server, "server", "http://127.0.0.1:8080", "orion server base URL")
	root.PersistentFlags().StringVarP(&user, "user", "u", "", "your user id")
	root.PersistentFlags().BoolVar(&useSQLite, "sqlite", false, "keep key material in sqlite instead of a flat file")

	root.AddCommand(initCmd(), sendCmd(), recvCmd(), fingerprintCmd())
	return root.Execute()
}
