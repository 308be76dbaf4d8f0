package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/fieldinventory/internal/client/poller"
	"github.com/mamadbah2/fieldinventory/internal/domain/models"
	"github.com/mamadbah2/fieldinventory/pkg/logger"
)

func newDeviceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Drive a reading session on a companion RFID or barcode device",
	}

	var (
		req         models.CreateReadingSessionRequest
		readingType string
		watch       bool
	)
	start := &cobra.Command{
		Use:   "start",
		Short: "Start a device reading session and print its deep link",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ReadingType = models.ReadingType(strings.ToUpper(readingType))
			view, err := a.client.CreateReadingSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s active until %s\n", view.ID, view.ExpiresAt.Local().Format(time.Kitchen))
			fmt.Fprintf(out, "open on the device: %s\n", view.DeepLink)
			if !watch {
				return nil
			}
			return watchSession(cmd, a, view.DeviceReadingSession)
		},
	}
	start.Flags().StringVar(&readingType, "type", string(models.ReadingTypeRFID), "Reading type: RFID or BARCODE")
	start.Flags().StringVar(&req.ProjectID, "project", "", "Inventory session the reads are committed to on completion")
	start.Flags().StringVar(&req.Location, "location", "", "Where the capture takes place")
	start.Flags().IntVar(&req.TimeoutSeconds, "timeout", 0, "Session timeout in seconds (server default when 0)")
	start.Flags().BoolVar(&watch, "watch", true, "Follow incoming reads until the session ends")

	watchCmd := &cobra.Command{
		Use:   "watch DEVICE_SESSION_ID",
		Short: "Follow the reads of a device session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.client.GetReadingSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return watchSession(cmd, a, view.DeviceReadingSession)
		},
	}

	active := &cobra.Command{
		Use:   "active",
		Short: "Show your active device session",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.client.ActiveReadingSession(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}

	read := &cobra.Command{
		Use:   "read IDENTIFIER",
		Short: "Record a read on your active device session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reading, err := a.client.RecordDeviceReading(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reading)
		},
	}

	complete := &cobra.Command{
		Use:   "complete DEVICE_SESSION_ID",
		Short: "Complete a device session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.client.CompleteReadingSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel DEVICE_SESSION_ID",
		Short: "Cancel a device session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.client.CancelReadingSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}

	cmd.AddCommand(start, watchCmd, active, read, complete, cancel)
	return cmd
}

func watchSession(cmd *cobra.Command, a *app, session models.DeviceReadingSession) error {
	out := cmd.OutOrStdout()
	w := poller.New(a.client, session, poller.Options{
		Interval: a.cfg.Client.PollInterval,
		Logger:   logger.Named(a.logger, "client.poller"),
	})
	w.Start(cmd.Context())
	defer w.Stop()

	seen := -1
	lastMinute := time.Duration(-1)
	for state := range w.Updates() {
		if len(state.Readings) != seen {
			seen = len(state.Readings)
			printReadings(out, state)
		}
		if minute := state.Remaining.Truncate(time.Minute); minute != lastMinute && state.Remaining > 0 {
			lastMinute = minute
			fmt.Fprintf(out, "%s remaining\n", state.Remaining.Round(time.Second))
		}
	}

	final := w.State()
	fmt.Fprintf(out, "session %s: %s (%d reads)\n", final.SessionID, final.Status, len(final.Readings))
	return nil
}

func printReadings(out io.Writer, state poller.State) {
	stale := ""
	if state.Stale {
		stale = " (last poll failed)"
	}
	fmt.Fprintf(out, "%d read(s)%s\n", len(state.Readings), stale)
	for _, r := range state.Readings {
		fmt.Fprintf(out, "  %s  %s\n", r.ReadAt.Local().Format(time.TimeOnly), r.Identifier)
	}
}
