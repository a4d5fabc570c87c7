package sync

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"dapsync/config"
	"dapsync/core/metadata"
	"dapsync/logger"
	"dapsync/model"
	"dapsync/repository"
	"dapsync/transport"
)

// LibraryLoader is the index-side collaborator of the engine.
// Satisfied by library.Reader.
type LibraryLoader interface {
	Load() ([]model.Track, []model.Playlist, error)
}

// Engine coordinates one sync run: resolve, plan, execute, report. It
// holds no schedule state; callers (CLI, watch mode, external cron)
// invoke Run as a stateless call.
type Engine struct {
	cfg       *config.Config
	loader    LibraryLoader
	store     repository.SyncStateRepository
	transport transport.Transport
	stager    Stager
	resolver  *Resolver

	// fingerprint is overridable in tests.
	fingerprint func(string) (string, error)
}

// NewEngine wires an engine from its collaborators.
func NewEngine(cfg *config.Config, loader LibraryLoader, store repository.SyncStateRepository, tr transport.Transport, stager Stager) *Engine {
	return &Engine{
		cfg:         cfg,
		loader:      loader,
		store:       store,
		transport:   tr,
		stager:      stager,
		resolver:    NewResolver(),
		fingerprint: metadata.Fingerprint,
	}
}

// Run performs one synchronization run and always returns a report; the
// report's Status distinguishes success, partial failure, and a fatal
// precondition that prevented any plan from executing.
func (e *Engine) Run(ctx context.Context, dryRun bool) *model.RunReport {
	report := &model.RunReport{
		RunID:     uuid.NewString(),
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
	defer func() {
		report.FinishedAt = time.Now()
		report.Duration = report.FinishedAt.Sub(report.StartedAt)
	}()

	logger.Info("starting sync run",
		logger.String("run_id", report.RunID),
		logger.String("mode", string(e.cfg.Rules.Mode)),
		logger.Bool("dry_run", dryRun))

	tracks, playlists, err := e.loader.Load()
	if err != nil {
		return e.fatal(report, err)
	}
	idx := NewIndex(tracks, playlists)

	// Dry-run is a pure report: no connection is made, nothing on the
	// device or in the state store is touched.
	if !dryRun {
		if err := e.transport.Connect(ctx); err != nil {
			return e.fatal(report, err)
		}
		defer func() {
			if err := e.transport.Disconnect(); err != nil {
				logger.Warn("failed to disconnect from device", logger.ErrorField(err))
			}
		}()
	}

	resolved := e.resolver.Resolve(idx, e.cfg.Rules.Criteria)
	resolved, unavailable := e.fingerprintTracks(resolved, report)

	records, err := e.store.ListAll()
	if err != nil {
		return e.fatal(report, err)
	}

	planner := &Planner{
		LibraryPath: e.cfg.LibraryPath,
		MusicRoot:   e.cfg.DeviceMusicPath,
		FullMode:    e.cfg.Rules.Mode == config.ModeFull,
		Unavailable: unavailable,
	}
	plan := planner.BuildPlan(resolved, records, idx)
	report.Skipped = len(plan.Skips)

	executor := &Executor{
		Transport:  e.transport,
		Store:      e.store,
		Stager:     e.stager,
		RetryLimit: e.cfg.Rules.RetryLimit,
		Workers:    e.cfg.Rules.WorkerCount,
		DryRun:     dryRun,
		Backoff:    3 * time.Second,
	}
	result := executor.Execute(ctx, plan)

	if dryRun {
		// Report the intended actions; nothing was executed.
		report.Created = len(plan.Creates)
		report.Updated = len(plan.Updates)
		report.Deleted = len(plan.Deletes)
	} else {
		report.Created = result.Created
		report.Updated = result.Updated
		report.Deleted = result.Deleted
		report.BytesTransferred = result.BytesTransferred
	}
	report.Failed += result.Failed
	report.Failures = append(report.Failures, result.Failures...)
	report.Cancelled = result.Cancelled

	if e.cfg.Rules.SyncPlaylists {
		e.syncPlaylists(ctx, idx, resolved, dryRun, report)
	}

	// The worst outcome wins: failed entries, failed playlist pushes and
	// an interrupted run all mean the device is not fully converged.
	if report.Failed > 0 || report.PlaylistsFailed > 0 || report.Cancelled {
		report.Status = model.RunPartialFailure
	} else {
		report.Status = model.RunSuccess
	}

	logger.Info("sync run finished",
		logger.String("run_id", report.RunID),
		logger.String("status", string(report.Status)),
		logger.Int("created", report.Created),
		logger.Int("updated", report.Updated),
		logger.Int("deleted", report.Deleted),
		logger.Int("skipped", report.Skipped),
		logger.Int("failed", report.Failed),
		logger.Int64("bytes", report.BytesTransferred),
		logger.Duration("duration", time.Since(report.StartedAt)))
	return report
}

// fingerprintTracks fills fingerprints for the resolved set. Tracks whose
// source cannot be read are reported as failed entries, not fatal to the
// run; their ids are returned separately so the planner still treats them
// as selected. A transient source outage must never prune a track from
// the device.
func (e *Engine) fingerprintTracks(resolved []*model.Track, report *model.RunReport) ([]*model.Track, []string) {
	out := resolved[:0]
	var unavailable []string
	for _, track := range resolved {
		fp, err := e.fingerprint(track.FilePath)
		if err != nil {
			logger.Warn("failed to fingerprint track",
				logger.String("track", track.ID),
				logger.String("path", track.FilePath),
				logger.ErrorField(err))
			report.Failed++
			report.Failures = append(report.Failures, model.Failure{
				TrackID: track.ID,
				Kind:    errorKind(err),
				Message: err.Error(),
			})
			unavailable = append(unavailable, track.ID)
			continue
		}
		track.Fingerprint = fp
		out = append(out, track)
	}
	return out, unavailable
}

// syncPlaylists regenerates and pushes every static playlist that
// intersects the resolved set.
func (e *Engine) syncPlaylists(ctx context.Context, idx *Index, resolved []*model.Track, dryRun bool, report *model.RunReport) {
	selected := make(map[string]*model.Track, len(resolved))
	for _, track := range resolved {
		selected[track.ID] = track
	}

	for _, playlist := range idx.Playlists() {
		if playlist.Kind != model.PlaylistStatic {
			continue
		}
		var tracks []*model.Track
		for _, id := range playlist.TrackIDs {
			if track, ok := selected[id]; ok {
				tracks = append(tracks, track)
			}
		}
		if len(tracks) == 0 {
			continue
		}

		name := playlist.Name
		if mapped, ok := e.cfg.Rules.PlaylistMappings[name]; ok {
			name = mapped
		}
		devicePath := PlaylistDevicePath(e.cfg.DeviceMusicPath, name)

		if dryRun {
			logger.Info("dry-run: intended playlist push",
				logger.String("playlist", name),
				logger.String("device_path", devicePath),
				logger.Int("tracks", len(tracks)))
			report.PlaylistsSynced++
			continue
		}

		if err := e.pushPlaylist(ctx, name, devicePath, tracks); err != nil {
			logger.Error("failed to sync playlist",
				logger.String("playlist", name),
				logger.ErrorField(err))
			report.PlaylistsFailed++
			continue
		}
		report.PlaylistsSynced++
		logger.Info("synced playlist",
			logger.String("playlist", name),
			logger.Int("tracks", len(tracks)))
	}
}

func (e *Engine) pushPlaylist(ctx context.Context, name, devicePath string, tracks []*model.Track) error {
	content := GenerateM3U(tracks, e.cfg.LibraryPath)

	tmp, err := os.CreateTemp("", "dapsync-playlist-*.m3u")
	if err != nil {
		return fmt.Errorf("failed to create playlist temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write playlist %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return e.transport.Push(ctx, tmp.Name(), devicePath)
}

// fatal finalizes the report for a precondition failure that prevented
// any plan from being computed or executed.
func (e *Engine) fatal(report *model.RunReport, err error) *model.RunReport {
	logger.Error("sync run aborted by precondition failure",
		logger.String("run_id", report.RunID),
		logger.ErrorField(err))
	report.Status = model.RunFatal
	report.Failures = append(report.Failures, model.Failure{
		Kind:    errorKind(err),
		Message: err.Error(),
	})
	return report
}

// Drift lists files present under the device music root that no device
// record accounts for. Generated playlists are excluded.
func (e *Engine) Drift(ctx context.Context) ([]string, error) {
	if err := e.transport.Connect(ctx); err != nil {
		return nil, err
	}
	defer e.transport.Disconnect()

	deviceFiles, err := e.transport.ListTracks(ctx, e.cfg.DeviceMusicPath)
	if err != nil {
		return nil, err
	}

	records, err := e.store.ListAll()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(records))
	for _, record := range records {
		known[record.DevicePath] = true
	}

	playlistsPrefix := path.Join(e.cfg.DeviceMusicPath, playlistsDirName) + "/"
	var drift []string
	for _, file := range deviceFiles {
		if known[file] || strings.HasPrefix(file, playlistsPrefix) {
			continue
		}
		drift = append(drift, file)
	}
	return drift, nil
}
