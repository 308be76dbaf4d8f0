package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/client/offline"
	"github.com/mamadbah2/fieldinventory/internal/config"
	"github.com/mamadbah2/fieldinventory/pkg/clients/inventory"
	"github.com/mamadbah2/fieldinventory/pkg/logger"
)

// app carries what every subcommand needs once the root has been set up.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	transport *offline.Transport
	client    *inventory.Client
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		apiURL  string
		userID  string
	)
	a := &app{}

	cmd := &cobra.Command{
		Use:   "fieldclient",
		Short: "Field operator client of the inventory reading service",
		Long: `fieldclient drives inventory sessions from the field.

Reads of session details, expected assets and statistics are cached and
served from memory while the network is down. Manual readings registered
offline are queued and replayed once connectivity returns.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(envFile)
			if err != nil {
				return err
			}
			if apiURL != "" {
				cfg.Client.APIBaseURL = apiURL
			}
			if userID != "" {
				cfg.Client.UserID = userID
			}

			log, err := logger.New(logger.Options{Level: cfg.Log.ClientLevel, Service: "fieldclient"})
			if err != nil {
				return err
			}

			tr, err := offline.NewTransport(offline.Options{
				CacheSize: cfg.Client.OfflineCacheSize,
				Logger:    logger.Named(log, "client.offline"),
			})
			if err != nil {
				return err
			}
			client, err := inventory.NewClient(cfg.Client, tr, logger.Named(log, "client.inventory"))
			if err != nil {
				return err
			}

			a.cfg, a.logger, a.transport, a.client = cfg, log, tr, client
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to an env file")
	cmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (overrides API_BASE_URL)")
	cmd.PersistentFlags().StringVar(&userID, "user", "", "Operator identity (overrides FIELD_USER_ID)")

	cmd.AddCommand(
		newSessionCmd(a),
		newExpectedCmd(a),
		newSyncCmd(a),
		newStatsCmd(a),
		newScanCmd(a),
		newDeviceCmd(a),
	)

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func cachedNotice(w io.Writer, origin inventory.Origin) {
	if origin.FromCache {
		fmt.Fprintf(w, "(offline: showing cached data from %s)\n", origin.CachedAt.Local().Format("2006-01-02 15:04:05"))
	}
}
