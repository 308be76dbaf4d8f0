package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/client/buffer"
	"github.com/mamadbah2/fieldinventory/internal/domain/models"
	"github.com/mamadbah2/fieldinventory/pkg/logger"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		queueFile string
		method    string
		precache  bool
	)

	cmd := &cobra.Command{
		Use:   "scan SESSION_ID",
		Short: "Register readings interactively, one identifier per line",
		Long: `Reads identifiers from standard input (keyboard or a scanner in keyboard
mode) and registers them against the session. While offline, readings are
queued on disk and replayed automatically when the connection comes back.

Lines starting with ':' are commands:
  :stats    show statistics (cached when offline)
  :pending  show the number of queued readings
  :flush    replay queued readings now
  :quit     leave`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]
			out := cmd.OutOrStdout()

			if queueFile == "" {
				path, err := defaultQueueFile()
				if err != nil {
					return err
				}
				queueFile = path
			}
			queue, err := buffer.NewQueue(a.client, buffer.Options{StatePath: queueFile, Logger: logger.Named(a.logger, "client.buffer")})
			if err != nil {
				return err
			}

			if precache {
				snapshot, err := a.client.CacheSessionForOffline(ctx, sessionID, 0)
				if err != nil {
					a.logger.Warn("session not cached for offline use", zap.String("session_id", sessionID), zap.Error(err))
				} else {
					fmt.Fprintf(out, "session %s cached for offline use (%d expected assets)\n", snapshot.Session.Code, snapshot.ExpectedAssets)
				}
			}

			go a.transport.Monitor(ctx, strings.TrimSuffix(a.cfg.Client.APIBaseURL, "/")+"/healthz", a.cfg.Client.PollInterval)
			go queue.Run(ctx, a.transport.Subscribe())

			if queue.Len() > 0 {
				result, err := queue.Flush(ctx)
				reportFlush(out, result, err)
			}

			lines := readLines(cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return leave(out, queue)
				case line, ok := <-lines:
					if !ok {
						return leave(out, queue)
					}
					if quit := handleLine(cmd, a, queue, sessionID, models.ReadMethod(strings.ToUpper(method)), line); quit {
						return leave(out, queue)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&queueFile, "queue-file", "", "Where queued readings are kept (default in the user cache dir)")
	cmd.Flags().StringVar(&method, "method", string(models.ReadManual), "Read method: MANUAL, RFID or BARCODE")
	cmd.Flags().BoolVar(&precache, "precache", true, "Cache the session for offline use before scanning")
	return cmd
}

func handleLine(cmd *cobra.Command, a *app, queue *buffer.Queue, sessionID string, method models.ReadMethod, line string) bool {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case ":quit", ":q":
		return true
	case ":pending":
		fmt.Fprintf(out, "%d reading(s) queued\n", queue.Len())
		return false
	case ":flush":
		result, err := queue.Flush(ctx)
		reportFlush(out, result, err)
		return false
	case ":stats":
		stats, origin, err := a.client.Statistics(ctx, sessionID)
		if err != nil {
			fmt.Fprintf(out, "statistics unavailable: %v\n", err)
			return false
		}
		cachedNotice(out, origin)
		fmt.Fprintf(out, "found %d/%d, not found %d, unregistered %d, written off %d, %.1f%% complete\n",
			stats.TotalFound, stats.TotalExpected, stats.TotalNotFound, stats.TotalUnregistered, stats.TotalWrittenOff, stats.CompletionPercentage)
		return false
	}
	if strings.HasPrefix(line, ":") {
		fmt.Fprintf(out, "unknown command %s\n", line)
		return false
	}

	reading, queued, err := queue.Submit(ctx, sessionID, models.RegisterReadingRequest{Identifier: line, ReadMethod: method})
	switch {
	case err != nil:
		fmt.Fprintf(out, "✗ %s: %v\n", line, err)
	case queued:
		fmt.Fprintf(out, "… %s queued (offline, %d pending)\n", line, queue.Len())
	default:
		fmt.Fprintf(out, "✓ %s %s\n", reading.Identifier, reading.Category)
	}
	return false
}

func reportFlush(out io.Writer, result buffer.FlushResult, err error) {
	if err != nil {
		fmt.Fprintf(out, "replay interrupted, %d sent, %d still queued: %v\n", result.Sent, result.Remaining, err)
		return
	}
	if result.Sent+result.Dropped > 0 {
		fmt.Fprintf(out, "replayed %d queued reading(s), %d rejected\n", result.Sent, result.Dropped)
	}
}

func leave(out io.Writer, queue *buffer.Queue) error {
	if n := queue.Len(); n > 0 {
		fmt.Fprintf(out, "%d reading(s) remain queued and will be replayed on the next scan\n", n)
	}
	return nil
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func defaultQueueFile() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache dir: %w", err)
	}
	dir = filepath.Join(dir, "fieldinventory")
	if err := os.MkdirAll(dir, 0o700); err != nil && !errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return filepath.Join(dir, "reading-queue.json"), nil
}
