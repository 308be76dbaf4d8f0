package main

import (
	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize a session with the external asset registry",
	}

	var limit int
	pull := &cobra.Command{
		Use:   "pull SESSION_ID",
		Short: "Upsert the registry asset list as expected assets",
		Long: `Pulls the registry asset list into the session. Safe to re-run: assets
are matched on their asset code and updated in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := a.client.SyncExpected(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), batch)
		},
	}
	pull.Flags().IntVar(&limit, "limit", 0, "Maximum number of registry assets to pull")

	var photos bool
	push := &cobra.Command{
		Use:   "push SESSION_ID",
		Short: "Upload the results of a completed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			receipt, err := a.client.UploadResults(cmd.Context(), args[0], photos)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
	push.Flags().BoolVar(&photos, "photos", false, "Include photos in the upload")

	cmd.AddCommand(pull, push)
	return cmd
}
