package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lostphotosfound/cli/config"
	"github.com/lostphotosfound/cli/state"
)

// newStatusCmd builds the subcommand that inspects the persistent stores
// without connecting to the server.
func newStatusCmd() *cobra.Command {
	var (
		username string
		stateDir string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how many messages and images previous runs recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if stateDir == "" {
				var err error
				stateDir, err = config.DefaultStateDir()
				if err != nil {
					return err
				}
			}

			index, err := state.Open(state.IndexPath(stateDir, username))
			if err != nil {
				return fmt.Errorf("open index store: %w", err)
			}
			defer index.Close()

			hashes, err := state.Open(state.HashesPath(stateDir, username))
			if err != nil {
				return fmt.Errorf("open hash store: %w", err)
			}
			defer hashes.Close()

			pterm.DefaultSection.Printf("State for %s\n", username)
			pterm.Info.Printf("State directory: %s\n", stateDir)
			pterm.Info.Printf("Messages processed: %d\n", index.Len())
			pterm.Info.Printf("Distinct images saved: %d\n", hashes.Len())

			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Mail account username the stores belong to")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory holding the stores (default: the run default)")

	return cmd
}
