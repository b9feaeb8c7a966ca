package record

// Candidate is a scored match produced for one query and never persisted.
// Scores are nil when the strategy does not compute them.
type Candidate struct {
	Record
	Similarity *int   `json:"similarity,omitempty"`  // Title similarity 0-100
	MatchScore *int   `json:"match_score,omitempty"` // Composite score (comprehensive only)
	Strategy   string `json:"strategy"`
}

// Group pairs a source record with the candidates found for it.
type Group struct {
	Source     Record      `json:"flora_publication"`
	Candidates []Candidate `json:"matching_candidates"`
}
