// Package main implements the canvasd CLI: an HTTP control surface and batch
// runner for the mathcanvas rendering pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mathcanvas/internal/config"
	"mathcanvas/internal/logging"
)

// Version is stamped at build time.
var Version = "dev"

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "canvasd",
	Short: "mathcanvas - headless rendering service for math visuals",
	Long: `canvasd drives a headless Chrome instance hosting the mathcanvas web app.

It extracts visual directives (number lines, graphs) from text documents,
renders each through the in-page drawing API, optionally verifies the
rendered SVG, and reports per-block results.

Run "canvasd serve" for the HTTP API or "canvasd batch" for one-shot runs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the canvasd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("canvasd %s\n", Version)
	},
}

// loadConfig reads the config file and initializes categorized logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	ws := workspace
	if ws == "" {
		ws, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve workspace: %w", err)
		}
	}
	if err := logging.Initialize(ws, cfg.Logging); err != nil {
		logger.Warn("categorized logging unavailable", zap.Error(err))
	}
	logging.Boot("canvasd %s starting, workspace=%s", Version, ws)
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "canvas.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace directory (default: cwd)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(alignCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
