package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dapsync/config"
	"dapsync/core/metadata"
	syncengine "dapsync/core/sync"
	"dapsync/db"
	"dapsync/library"
	"dapsync/logger"
	"dapsync/model"
	"dapsync/repository"
	"dapsync/transport"
)

var rootCmd = &cobra.Command{
	Use:   "dapsync",
	Short: "dapsync keeps a portable audio player in sync with a music library.",
	Long: `dapsync resolves declarative selection criteria against an exported
music library catalog, diffs the result against recorded device state and
pushes the minimal set of changes to the device over adb.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and initializes logging. Shared by all
// subcommands.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	})
	return cfg, nil
}

// buildEngine wires the sync engine and its collaborators from config.
// The returned cleanup closes the state store.
func buildEngine(cfg *config.Config) (*syncengine.Engine, func(), error) {
	gdb, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(gdb, &model.DeviceRecord{}); err != nil {
		db.Close(gdb)
		return nil, nil, err
	}

	store := repository.NewGormStateRepository(gdb)
	reader := library.NewReader(cfg.LibraryXML, cfg.PlaylistsPath, cfg.LibraryPath)
	adb := transport.NewADBClient(cfg.ADBPath, cfg.DeviceAddr(), cfg.PushTimeout, cfg.ShellTimeout)
	normalizer := metadata.NewNormalizer(metadata.Policy{
		PreserveTags: cfg.Rules.PreserveTags,
		EmbedArtwork: cfg.Rules.EmbedArtwork,
		ArtworkSize:  cfg.Rules.ArtworkSize,
	})

	engine := syncengine.NewEngine(cfg, reader, store, adb, normalizer)
	cleanup := func() {
		if err := db.Close(gdb); err != nil {
			logger.Warn("failed to close state database", logger.ErrorField(err))
		}
	}
	return engine, cleanup, nil
}

// printReport writes the human-readable run summary to stdout.
func printReport(report *model.RunReport) {
	fmt.Printf("run %s: %s\n", report.RunID, report.Status)
	if report.Cancelled {
		fmt.Println("  run was cancelled before completing")
	}
	fmt.Printf("  created: %d  updated: %d  deleted: %d  skipped: %d  failed: %d\n",
		report.Created, report.Updated, report.Deleted, report.Skipped, report.Failed)
	fmt.Printf("  playlists synced: %d  failed: %d\n", report.PlaylistsSynced, report.PlaylistsFailed)
	fmt.Printf("  transferred: %.2f MB in %s\n",
		float64(report.BytesTransferred)/1024/1024, report.Duration.Round(10e6))
	for _, failure := range report.Failures {
		fmt.Printf("  failure: track=%s reason=%s kind=%s: %s\n",
			failure.TrackID, failure.Reason, failure.Kind, failure.Message)
	}
}
