package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"dapsync/logger"
)

// watchDebounce coalesces the burst of writes a catalog export produces
// into a single run.
const watchDebounce = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the library catalog and sync on change",
	Long: `Watches the library catalog file and runs a synchronization pass
whenever it is rewritten. The engine itself stays stateless; this command
is just a trigger around it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		engine, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()

		// Watch the directory: exports typically replace the file, which
		// drops a watch placed on the file itself.
		if err := watcher.Add(filepath.Dir(cfg.LibraryXML)); err != nil {
			return err
		}
		target := filepath.Base(cfg.LibraryXML)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("watching library catalog", logger.String("path", cfg.LibraryXML))

		var timer *time.Timer
		runs := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				logger.Info("watch stopped")
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				logger.Debug("catalog changed", logger.String("event", event.Op.String()))
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case runs <- struct{}{}:
					default:
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				logger.Warn("watcher error", logger.ErrorField(err))

			case <-runs:
				report := engine.Run(ctx, false)
				printReport(report)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
