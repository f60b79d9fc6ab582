package client

// mergeChanges applies a remote change list onto local records by record id.
//
// The server orders changes newest-first, so the traversal runs in reverse
// (oldest-first): when a changeset carries several entries for one id, the
// newest wins, and a tombstone erases whatever state preceded it within the
// same changeset. Output order is unspecified; the result is a set keyed by
// id.
func mergeChanges(localRecords, remoteChanges []Record) []Record {
	byID := make(map[string]Record, len(localRecords)+len(remoteChanges))
	for _, record := range localRecords {
		byID[record.ID()] = record
	}

	for i := len(remoteChanges) - 1; i >= 0; i-- {
		change := remoteChanges[i]
		if change.Deleted() {
			delete(byID, change.ID())
		} else {
			byID[change.ID()] = change
		}
	}

	merged := make([]Record, 0, len(byID))
	for _, record := range byID {
		merged = append(merged, record)
	}
	return merged
}
