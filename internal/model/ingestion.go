package model

import "time"

// IngestStatus is the terminal state of one ingestion attempt.
type IngestStatus string

const (
	IngestStatusIngested     IngestStatus = "ingested"
	IngestStatusSkipped      IngestStatus = "skipped"
	IngestStatusNotFound     IngestStatus = "not_found"
	IngestStatusUnverified   IngestStatus = "unverified"
	IngestStatusInsertFailed IngestStatus = "insert_failed"
)

// IngestOutcome reports how a single drug ingestion ended.
type IngestOutcome struct {
	Drug       string       `json:"drug"`
	Status     IngestStatus `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Sources    []string     `json:"sources,omitempty"`
	Conflicts  []string     `json:"conflicts,omitempty"`
	RecordID   string       `json:"record_id,omitempty"`
}

// IngestLogEntry is one append-only audit row. The pipeline only ever
// writes these; it never reads them back.
type IngestLogEntry struct {
	ID          string    `json:"id"`
	DrugName    string    `json:"drug_name"`
	Stage       string    `json:"stage"`
	Status      string    `json:"status"`
	Confidence  float64   `json:"confidence,omitempty"`
	SourcesUsed []string  `json:"sources_used,omitempty"`
	Conflicts   string    `json:"conflicts,omitempty"`
	Details     string    `json:"details,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DiscoveryStats summarizes one discovery sweep.
type DiscoveryStats struct {
	Discovered int             `json:"discovered"`
	Ingested   int             `json:"ingested"`
	Skipped    int             `json:"skipped"`
	Unverified int             `json:"unverified"`
	Failed     int             `json:"failed"`
	Details    []IngestOutcome `json:"details"`
}

// UpdateStats summarizes a re-verification pass over existing drugs.
type UpdateStats struct {
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}
