package sync

import (
	"dapsync/logger"
	"dapsync/model"
)

// Planner diffs the resolved target set against recorded device state to
// produce the transfer plan for one run.
type Planner struct {
	LibraryPath string
	MusicRoot   string
	// FullMode forces a create for every resolved track, bypassing the
	// skip/update distinction.
	FullMode bool
	// Unavailable lists selected track ids whose source could not be read
	// this run. They get no transfer entry, but they count as selected so
	// their device copies are never pruned.
	Unavailable []string
}

// BuildPlan classifies every track id present in either the resolved set
// or the device records:
//
//	in target, no record            -> create
//	in target, fingerprint differs  -> update
//	in target, fingerprint equal    -> skip
//	in records, not in target       -> delete
//
// The plan orders deletes first so device space is freed before new
// content is pushed, then creates, then updates. Within each category the
// discovery order of the inputs is preserved.
func (p *Planner) BuildPlan(resolved []*model.Track, records []model.DeviceRecord, idx *Index) *model.Plan {
	byID := make(map[string]*model.DeviceRecord, len(records))
	for i := range records {
		byID[records[i].TrackID] = &records[i]
	}

	selected := make(map[string]bool, len(resolved))
	for _, id := range p.Unavailable {
		selected[id] = true
	}
	plan := &model.Plan{}

	for _, track := range resolved {
		selected[track.ID] = true
		devicePath := DevicePath(track.FilePath, p.LibraryPath, p.MusicRoot)
		entry := model.PlanEntry{
			TrackID:    track.ID,
			Track:      track,
			DevicePath: devicePath,
		}

		if p.FullMode {
			entry.Action = model.ActionCreate
			entry.Reason = model.ReasonFullSync
			plan.Creates = append(plan.Creates, entry)
			continue
		}

		record := byID[track.ID]
		switch {
		case record == nil:
			entry.Action = model.ActionCreate
			entry.Reason = model.ReasonNew
			plan.Creates = append(plan.Creates, entry)
		case record.Fingerprint != track.Fingerprint:
			entry.Action = model.ActionUpdate
			entry.Reason = model.ReasonFingerprintChanged
			plan.Updates = append(plan.Updates, entry)
		default:
			entry.Action = model.ActionSkip
			entry.Reason = model.ReasonUnchanged
			plan.Skips = append(plan.Skips, entry)
		}
	}

	// Records with no selected counterpart are pruned. A track that
	// vanished from the library entirely is distinguished from one that
	// merely fell out of the criteria; both are safe to delete.
	for i := range records {
		record := &records[i]
		if selected[record.TrackID] {
			continue
		}
		reason := model.ReasonDeselected
		if idx.Track(record.TrackID) == nil {
			reason = model.ReasonRemovedFromLibrary
		}
		plan.Deletes = append(plan.Deletes, model.PlanEntry{
			TrackID:    record.TrackID,
			Action:     model.ActionDelete,
			Reason:     reason,
			DevicePath: record.DevicePath,
		})
	}

	logger.Info("built transfer plan",
		logger.Int("creates", len(plan.Creates)),
		logger.Int("updates", len(plan.Updates)),
		logger.Int("deletes", len(plan.Deletes)),
		logger.Int("skips", len(plan.Skips)),
		logger.Bool("full_mode", p.FullMode))
	return plan
}
