package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/audiolibrelab/mediactl/internal/bridge"
	"github.com/audiolibrelab/mediactl/internal/config"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	bridgeType   string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "mediactl",
	Short: "Control native media playback and recording through a bridge",
	Long: `mediactl drives a native media engine through an asynchronous bridge.

Each media handle proxies one native player or recorder. Commands are sent
over the bridge and status events (state, duration, position, errors) flow
back and update the handle's cached state.

The default bridge is an in-process simulator. Set bridge.type to "process"
and bridge.command to a helper that speaks the JSON line protocol to drive
a real engine.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = "~/.config/mediactl.yaml"
		}
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to resolve config path %s: %w", cfgFile, err)
		}
		cfgFile = path

		cfg, err = config.LoadOrDefault(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if bridgeType != "" {
			cfg.Bridge.Type = strings.ToLower(bridgeType)
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid --bridge: %w", err)
			}
		}

		slog.Debug("Configuration resolved", "file", cfgFile, "profile", cfg.Profile, "bridge", cfg.Bridge.Type)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mediactl.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&bridgeType, "bridge", "", fmt.Sprintf("bridge type, one of %v (overrides config)", bridge.GetAvailableBackends()))
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=bridge helper output, 3=max tracing")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2, 3:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	// Helper processes inherit the environment
	if level >= 3 {
		os.Setenv("MEDIACTL_BRIDGE_TRACE", "1")
	}
}

// bridgeLogWriter returns where helper process stderr goes
func bridgeLogWriter() io.Writer {
	if verboseLevel >= 2 {
		return os.Stderr
	}
	return nil
}
