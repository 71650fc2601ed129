package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/mediactl/internal/media"
	"github.com/audiolibrelab/mediactl/internal/service"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [src]",
	Short: "Play a media source until it stops",
	Long: `Create a media handle for src and start playback. Status events are
printed as they arrive. The command returns when playback reaches STOPPED,
or stops and releases the media on Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		loops, _ := cmd.Flags().GetInt("loops")
		seek, _ := cmd.Flags().GetInt("seek")
		volume, _ := cmd.Flags().GetFloat64("volume")

		svc, err := service.New(cfg, bridgeLogWriter())
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events, cancel := svc.Subscribe()
		defer cancel()

		id, err := svc.Open(ctx, src)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", src, err)
		}
		defer release(svc, id)

		if cmd.Flags().Changed("volume") {
			if err := svc.SetVolume(ctx, id, volume); err != nil {
				return fmt.Errorf("failed to set volume: %w", err)
			}
		}
		if err := svc.Play(ctx, id, media.PlayOptions{NumberOfLoops: loops}); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		if seek > 0 {
			if err := svc.SeekTo(ctx, id, seek); err != nil {
				return fmt.Errorf("seek failed: %w", err)
			}
		}

		slog.Info("Playing - Press Ctrl+C to stop", "id", id, "src", src)
		for {
			select {
			case <-ctx.Done():
				slog.Info("Stopping playback...")
				return stopMedia(svc, id)
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if ev.ID != id {
					continue
				}
				printEvent(ev)
				if stopped(ev) {
					return nil
				}
			}
		}
	},
}

func init() {
	playCmd.Flags().Int("loops", 0, "number of loops to request from the engine")
	playCmd.Flags().Int("seek", 0, "start position in milliseconds")
	playCmd.Flags().Float64("volume", 1, "playback volume between 0 and 1")
}

func printEvent(ev media.StatusEvent) {
	n, numeric := ev.Value.(float64)
	switch {
	case ev.Type == media.MsgState && numeric:
		fmt.Printf("%s %s %s\n", ev.ID, ev.Type, media.State(int(n)))
	case numeric:
		fmt.Printf("%s %s %ss\n", ev.ID, ev.Type, humanize.FtoaWithDigits(n, 3))
	default:
		fmt.Printf("%s %s %v\n", ev.ID, ev.Type, ev.Value)
	}
}

func stopped(ev media.StatusEvent) bool {
	if ev.Type != media.MsgState {
		return false
	}
	n, ok := ev.Value.(float64)
	return ok && media.State(int(n)) == media.StateStopped
}

// stopMedia uses a fresh context since the command context is already done
func stopMedia(svc service.Service, id string) error {
	if err := svc.Stop(context.Background(), id); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	return nil
}

func release(svc service.Service, id string) {
	if err := svc.Release(context.Background(), id); err != nil {
		slog.Warn("Failed to release media", "id", id, "error", err)
	}
}
