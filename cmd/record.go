package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/mediactl/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [file]",
	Short: "Record audio into a file until interrupted",
	Long: `Create a media handle for file and start recording. The current
amplitude is logged periodically with -v. Recording stops and the media is
released on Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		interval, _ := cmd.Flags().GetDuration("amplitude-interval")
		slog.Info("Record command started", "file", file)

		svc, err := service.New(cfg, bridgeLogWriter())
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		id, err := svc.Open(ctx, file)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer release(svc, id)

		if err := svc.StartRecord(ctx, id); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording - Press Ctrl+C to stop", "id", id, "file", file)

		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for done := false; !done; {
				select {
				case <-ctx.Done():
					done = true
				case <-ticker.C:
					logAmplitude(ctx, svc, id)
				}
			}
		} else {
			<-ctx.Done()
		}

		slog.Info("Stopping recording...")
		if err := svc.StopRecord(context.Background(), id); err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().Duration("amplitude-interval", time.Second, "how often to log the input amplitude (0 disables)")
}

func logAmplitude(ctx context.Context, svc service.Service, id string) {
	amp, err := svc.Amplitude(ctx, id)
	if err != nil {
		slog.Debug("Amplitude unavailable", "id", id, "error", err)
		return
	}
	slog.Debug("Recording amplitude", "id", id, "amplitude", amp)
}
