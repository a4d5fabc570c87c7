package model

// Action is the device-side operation proposed for one track.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSkip   Action = "skip"
)

// Reason explains why a plan entry carries its action.
type Reason string

const (
	// ReasonNew marks a selected track with no device record.
	ReasonNew Reason = "new"
	// ReasonFingerprintChanged marks a selected track whose content changed
	// since the last successful transfer.
	ReasonFingerprintChanged Reason = "fingerprint-changed"
	// ReasonUnchanged marks a selected track already on the device.
	ReasonUnchanged Reason = "unchanged"
	// ReasonDeselected marks a device record whose track still exists in the
	// library but is no longer selected by any criteria entry.
	ReasonDeselected Reason = "deselected"
	// ReasonRemovedFromLibrary marks a device record whose track has
	// disappeared from the library index entirely.
	ReasonRemovedFromLibrary Reason = "removed-from-library"
	// ReasonFullSync marks a create forced by full mode regardless of
	// fingerprint state.
	ReasonFullSync Reason = "full-sync"
)

// PlanEntry is one proposed action for one track. Entries are ephemeral:
// they are regenerated every run and never persisted.
type PlanEntry struct {
	TrackID    string
	Action     Action
	Reason     Reason
	Track      *Track // nil for delete entries
	DevicePath string
}

// Plan is the ordered transfer plan for a run: deletes first to free
// device space, then creates, then updates. Within each category the
// discovery order is preserved.
type Plan struct {
	Deletes []PlanEntry
	Creates []PlanEntry
	Updates []PlanEntry
	Skips   []PlanEntry
}

// Entries returns all actionable entries in execution order. Skips are
// excluded; they require no device operation.
func (p *Plan) Entries() []PlanEntry {
	out := make([]PlanEntry, 0, len(p.Deletes)+len(p.Creates)+len(p.Updates))
	out = append(out, p.Deletes...)
	out = append(out, p.Creates...)
	out = append(out, p.Updates...)
	return out
}

// IsNoop reports whether the plan proposes no device mutation.
func (p *Plan) IsNoop() bool {
	return len(p.Deletes) == 0 && len(p.Creates) == 0 && len(p.Updates) == 0
}
