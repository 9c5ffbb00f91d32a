package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mathcanvas/internal/browser"
	"mathcanvas/internal/logging"
	"mathcanvas/internal/pipeline"
)

var (
	batchVerify     bool
	batchMaxRetries int
	batchOutDir     string
	batchWatch      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [document]",
	Short: "Run the visual block pipeline over a text document",
	Long: `Extracts visual directives from the document, renders each through the
canvas page, optionally verifies the rendered SVG, and writes the resulting
artifacts to the output directory. With --watch, the pipeline re-runs every
time the document changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().BoolVar(&batchVerify, "verify", false, "visually verify each rendered artifact")
	batchCmd.Flags().IntVar(&batchMaxRetries, "max-retries", pipeline.DefaultMaxRetries, "attempts per block")
	batchCmd.Flags().StringVar(&batchOutDir, "out", "", "artifact output directory (default from config)")
	batchCmd.Flags().BoolVar(&batchWatch, "watch", false, "re-run when the document changes")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	docPath := args[0]
	outDir := batchOutDir
	if outDir == "" {
		outDir = cfg.Pipeline.OutputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := browser.NewHost(browserConfigFrom(cfg.Browser))
	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser host: %w", err)
	}
	defer func() {
		if err := host.Shutdown(context.Background()); err != nil {
			logging.BrowserWarn("browser shutdown: %v", err)
		}
	}()

	runner := pipeline.NewRunner(pipeline.Config{
		Verify:     batchVerify,
		MaxRetries: batchMaxRetries,
	}, host, host)

	if err := runBatchOnce(ctx, runner, docPath, outDir); err != nil {
		return err
	}
	if !batchWatch {
		return nil
	}
	return watchAndRerun(ctx, runner, docPath, outDir)
}

// runBatchOnce runs the pipeline over the document and writes artifacts.
func runBatchOnce(ctx context.Context, runner *pipeline.Runner, docPath, outDir string) error {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	logging.Batch("processing %s", docPath)
	report, err := runner.Run(ctx, string(data))
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for i, item := range report.Items {
		if item.Artifact == "" {
			continue
		}
		name := fmt.Sprintf("block_%03d_%s.svg", i+1, item.Kind)
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(item.Artifact), 0o644); err != nil {
			return fmt.Errorf("write artifact %s: %w", name, err)
		}
	}

	fmt.Printf("%d block(s) found, %d succeeded\n", report.TotalFound, report.TotalSucceeded)
	for i, item := range report.Items {
		status := "ok"
		if !item.Succeeded {
			status = "FAILED"
		}
		fmt.Printf("  %3d. %-12s offset=%-6d attempts=%d  %s\n",
			i+1, item.Kind, item.SourcePosition, item.AttemptsMade, status)
		for _, verr := range item.VerificationErrors {
			fmt.Printf("       - %s\n", verr)
		}
	}
	return nil
}

// watchAndRerun re-runs the pipeline whenever the document is written.
// Editors often emit bursts of events, so writes are debounced.
func watchAndRerun(ctx context.Context, runner *pipeline.Runner, docPath, outDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: many editors replace the file on save, which
	// would drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(docPath)); err != nil {
		return fmt.Errorf("watch %s: %w", docPath, err)
	}
	logger.Info("watching for changes", zap.String("document", docPath))

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(docPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.BatchWarn("watcher error: %v", err)
		case <-debounce:
			debounce = nil
			if err := runBatchOnce(ctx, runner, docPath, outDir); err != nil {
				// Keep watching; a transient failure should not end
				// the session.
				logger.Warn("batch re-run failed", zap.Error(err))
			}
		}
	}
}
