package queue

import "time"

// DiffResult is the outcome of comparing a fetched candidate list against
// the previously accepted snapshot.
type DiffResult struct {
	// Added holds ids present in the candidate but not in the previous
	// snapshot. Empty on the very first comparison: initial population
	// is not news.
	Added []ItemID
	// Removed holds ids present in the previous snapshot but absent from
	// the candidate.
	Removed []ItemID
	// Merged is the candidate list accepted as the new snapshot.
	Merged Snapshot
}

// Diff compares a candidate list against the previous snapshot by identity.
// prev == nil means no snapshot has ever been accepted; in that case Added
// is empty regardless of candidate size so a fresh start does not flood the
// dispatcher with false "new" alerts.
func Diff(prev *Snapshot, candidate []PendingItem, seq int64, taken time.Time) DiffResult {
	merged := NewSnapshot(candidate, seq, taken)

	if prev == nil {
		return DiffResult{Merged: merged}
	}

	prevIDs := make(map[ItemID]struct{}, len(prev.Items))
	for _, it := range prev.Items {
		prevIDs[it.ID] = struct{}{}
	}

	var added []ItemID
	nextIDs := make(map[ItemID]struct{}, len(merged.Items))
	for _, it := range merged.Items {
		nextIDs[it.ID] = struct{}{}
		if _, ok := prevIDs[it.ID]; !ok {
			added = append(added, it.ID)
		}
	}

	var removed []ItemID
	for _, it := range prev.Items {
		if _, ok := nextIDs[it.ID]; !ok {
			removed = append(removed, it.ID)
		}
	}

	return DiffResult{Added: added, Removed: removed, Merged: merged}
}
