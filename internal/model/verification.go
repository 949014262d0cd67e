package model

// VerificationResult is the outcome of cross-source verification for one
// drug. It is built fresh per ingestion attempt and never persisted itself;
// only MergedData plus the sources/conflicts lists travel onward.
type VerificationResult struct {
	Verified    bool      `json:"verified"`
	Confidence  float64   `json:"confidence"`
	MergedData  *DrugData `json:"merged_data,omitempty"`
	SourcesUsed []string  `json:"sources_used,omitempty"`
	Conflicts   []string  `json:"conflicts,omitempty"`
	Notes       []string  `json:"notes,omitempty"`
}
