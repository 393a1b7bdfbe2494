package domain

import "time"

// ScoreBreakdown expone cada componente del puntaje antes del redondeo.
type ScoreBreakdown struct {
	Tags         float64 `json:"tags"`
	Traits       float64 `json:"traits"`
	Availability float64 `json:"availability"`
	Verification float64 `json:"verification"`
}

// MatchResult se produce en cada ranking y no se modifica despues.
type MatchResult struct {
	CandidateID string         `json:"candidate_id"`
	Score       int            `json:"score"` // [0,100]
	Matched     []string       `json:"matched"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
}

// MatchSet agrupa un ranking persistido para un sujeto.
type MatchSet struct {
	ID            string        `json:"id"`
	SubjectID     string        `json:"subject_id"`
	ReferenceDate time.Time     `json:"reference_date"`
	Results       []MatchResult `json:"results"`
	CreatedAt     time.Time     `json:"created_at"`
}
