package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"dapsync/core/metadata"
	"dapsync/library"
	"dapsync/logger"
	"dapsync/model"
	"dapsync/repository"
	"dapsync/transport"
)

// Stager produces the transfer-ready byte stream for one source file.
// Satisfied by metadata.Normalizer.
type Stager interface {
	Stage(srcPath string) (stagedPath string, size int64, cleanup func(), err error)
}

// Executor realizes plan entries against the device transport. Entries
// are independent (distinct tracks, distinct device paths), so creates
// and updates run on a bounded worker pool; deletes run first to free
// device space.
type Executor struct {
	Transport  transport.Transport
	Store      repository.SyncStateRepository
	Stager     Stager
	RetryLimit int
	Workers    int
	DryRun     bool
	// Backoff is the base delay between transport retries.
	Backoff time.Duration

	now func() time.Time
}

// ExecResult aggregates per-entry outcomes of one execution.
type ExecResult struct {
	Created          int
	Updated          int
	Deleted          int
	Failed           int
	BytesTransferred int64
	Failures         []model.Failure
	// Cancelled marks a run that stopped before every entry was attempted.
	Cancelled bool

	mu gosync.Mutex
}

func (r *ExecResult) addFailure(entry model.PlanEntry, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
	r.Failures = append(r.Failures, model.Failure{
		TrackID: entry.TrackID,
		Reason:  entry.Reason,
		Kind:    errorKind(err),
		Message: err.Error(),
	})
}

func (r *ExecResult) addSuccess(action model.Action, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch action {
	case model.ActionCreate:
		r.Created++
	case model.ActionUpdate:
		r.Updated++
	case model.ActionDelete:
		r.Deleted++
	}
	r.BytesTransferred += bytes
}

// Execute runs the plan in order. Entry-level errors never abort the
// run; the result carries every failure. Cancellation is honored between
// entries; an entry already in flight completes first so no device
// record is ever left half-written.
func (e *Executor) Execute(ctx context.Context, plan *model.Plan) *ExecResult {
	if e.now == nil {
		e.now = time.Now
	}
	result := &ExecResult{}

	if e.DryRun {
		e.report(plan)
		return result
	}

	// Deletes are cheap shell operations; run them sequentially before
	// any push so space is freed first.
	for _, entry := range plan.Deletes {
		if ctx.Err() != nil {
			logger.Warn("run cancelled before delete phase completed")
			result.Cancelled = true
			return result
		}
		e.runDelete(ctx, entry, result)
	}

	transfers := make([]model.PlanEntry, 0, len(plan.Creates)+len(plan.Updates))
	transfers = append(transfers, plan.Creates...)
	transfers = append(transfers, plan.Updates...)
	if len(transfers) == 0 {
		return result
	}

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}

	entries := make(chan model.PlanEntry)
	var wg gosync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range entries {
				// The entry in flight finishes even if the run is being
				// cancelled; device ops stay bounded by their own timeouts.
				e.runTransfer(context.WithoutCancel(ctx), entry, result)
			}
		}()
	}

feed:
	for _, entry := range transfers {
		// Checked before the select: a select with a ready worker and a
		// done context picks either case.
		if ctx.Err() != nil {
			logger.Warn("run cancelled, not starting further transfers")
			result.Cancelled = true
			break feed
		}
		select {
		case <-ctx.Done():
			logger.Warn("run cancelled, not starting further transfers")
			result.Cancelled = true
			break feed
		case entries <- entry:
		}
	}
	close(entries)
	wg.Wait()

	return result
}

// runTransfer stages the source and pushes it, then records the outcome.
// The device record is written only after the push is confirmed.
func (e *Executor) runTransfer(ctx context.Context, entry model.PlanEntry, result *ExecResult) {
	staged, size, cleanup, err := e.Stager.Stage(entry.Track.FilePath)
	if err != nil {
		logger.Warn("failed to stage track",
			logger.String("track", entry.TrackID),
			logger.ErrorField(err))
		result.addFailure(entry, err)
		e.markFailed(entry)
		return
	}
	defer cleanup()

	if err := e.pushWithRetry(ctx, staged, entry.DevicePath); err != nil {
		logger.Error("failed to transfer track",
			logger.String("track", entry.TrackID),
			logger.String("device_path", entry.DevicePath),
			logger.ErrorField(err))
		result.addFailure(entry, err)
		e.markFailed(entry)
		return
	}

	record := &model.DeviceRecord{
		TrackID:     entry.TrackID,
		Fingerprint: entry.Track.Fingerprint,
		DevicePath:  entry.DevicePath,
		SyncedAt:    e.now(),
		Status:      model.StatusSuccess,
	}
	if err := e.Store.Put(record); err != nil {
		result.addFailure(entry, err)
		return
	}

	result.addSuccess(entry.Action, size)
	logger.Info("transferred track",
		logger.String("track", entry.TrackID),
		logger.String("action", string(entry.Action)),
		logger.Int64("bytes", size))
}

// pushWithRetry retries transport failures up to the configured bound
// with linear backoff. Timeouts follow the same policy.
func (e *Executor) pushWithRetry(ctx context.Context, staged, devicePath string) error {
	attempts := e.RetryLimit + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = e.Transport.Push(ctx, staged, devicePath)
		if err == nil {
			return nil
		}
		if attempt < attempts {
			logger.Warn("push failed, retrying",
				logger.String("device_path", devicePath),
				logger.Int("attempt", attempt),
				logger.ErrorField(err))
			time.Sleep(e.Backoff * time.Duration(attempt))
		}
	}
	return err
}

// markFailed records a terminal failure for a track that already had a
// device record. The previous fingerprint is preserved so the next run
// classifies the track as an update again; a failed create writes
// nothing, leaving the track eligible as a create.
func (e *Executor) markFailed(entry model.PlanEntry) {
	existing, err := e.Store.Get(entry.TrackID)
	if err != nil || existing == nil {
		return
	}
	existing.Status = model.StatusFailed
	if err := e.Store.Put(existing); err != nil {
		logger.Warn("failed to mark device record failed",
			logger.String("track", entry.TrackID),
			logger.ErrorField(err))
	}
}

// runDelete removes a pruned track from the device. A failed delete is
// logged and not retried within the run; the stale record stays so the
// next run prunes it again.
func (e *Executor) runDelete(ctx context.Context, entry model.PlanEntry, result *ExecResult) {
	if err := e.Transport.Remove(ctx, entry.DevicePath); err != nil {
		logger.Error("failed to delete track from device",
			logger.String("track", entry.TrackID),
			logger.String("device_path", entry.DevicePath),
			logger.ErrorField(err))
		result.addFailure(entry, err)
		return
	}
	if err := e.Store.Delete(entry.TrackID); err != nil {
		result.addFailure(entry, err)
		return
	}
	result.addSuccess(model.ActionDelete, 0)
	logger.Info("deleted track from device",
		logger.String("track", entry.TrackID),
		logger.String("reason", string(entry.Reason)))
}

// report logs every intended action without touching the device or the
// state store.
func (e *Executor) report(plan *model.Plan) {
	for _, entry := range plan.Entries() {
		logger.Info("dry-run: intended action",
			logger.String("track", entry.TrackID),
			logger.String("action", string(entry.Action)),
			logger.String("reason", string(entry.Reason)),
			logger.String("device_path", entry.DevicePath))
	}
}

// errorKind maps an error to its taxonomy name for the run report.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownPlaylist):
		return "unknown-playlist"
	case errors.Is(err, metadata.ErrUnreadableSource):
		return "unreadable-source"
	case errors.Is(err, metadata.ErrCorruptArtwork):
		return "corrupt-artwork"
	case errors.Is(err, transport.ErrTimeout):
		return "timeout"
	case errors.Is(err, transport.ErrDeviceUnreachable):
		return "device-unreachable"
	case errors.Is(err, transport.ErrTransport):
		return "transport"
	case errors.Is(err, library.ErrLibraryUnreadable):
		return "library-unreadable"
	default:
		return "internal"
	}
}
