package domain

import "encoding/json"

// TrialUsage is one entry of the trial store, keyed by hardware id.
// BatchesUsed and ConversionsUsed are legacy counters kept only so older
// documents round-trip; ConversionsUsed is dropped on the first write.
type TrialUsage struct {
	FilesUsed       int       `json:"files_used"`
	FirstSeen       Timestamp `json:"first_seen"`
	LastSeen        Timestamp `json:"last_seen"`
	BatchesUsed     *int      `json:"batches_used,omitempty"`
	ConversionsUsed *int      `json:"conversions_used,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. A legacy record that has
// conversions_used but no files_used starts from the legacy count, so the
// migration never hands back quota the device already consumed.
func (u *TrialUsage) UnmarshalJSON(data []byte) error {
	type plain TrialUsage
	var raw struct {
		plain
		FilesUsed *int `json:"files_used"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = TrialUsage(raw.plain)
	switch {
	case raw.FilesUsed != nil:
		u.FilesUsed = *raw.FilesUsed
	case u.ConversionsUsed != nil:
		u.FilesUsed = *u.ConversionsUsed
	}
	if u.FilesUsed < 0 {
		u.FilesUsed = 0
	}
	return nil
}

// TrialEntry pairs a usage record with its hardware id for listings.
type TrialEntry struct {
	HardwareID string     `json:"hardware_id"`
	Usage      TrialUsage `json:"usage"`
}

// TrialRules is the hot-reloadable quota document.
type TrialRules struct {
	MaxFiles   int `json:"max_files" yaml:"max_files"`
	MaxBatches int `json:"max_batches,omitempty" yaml:"max_batches"`
}
