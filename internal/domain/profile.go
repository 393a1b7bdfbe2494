package domain

import (
	"fmt"
	"time"
)

// WeightedLabel es un elemento de un multiset: etiqueta, peso acumulado y cantidad de apariciones.
type WeightedLabel struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
	Count  int     `json:"count"`
}

// MeanWeight devuelve el peso promedio por aparicion.
func (w WeightedLabel) MeanWeight() float64 {
	if w.Count <= 0 {
		return 0
	}
	return w.Weight / float64(w.Count)
}

// SubjectProfile es el agregado derivado de una sesion de intake completa.
type SubjectProfile struct {
	SubjectID      string          `json:"subject_id"`
	SessionID      string          `json:"session_id,omitempty"`
	Traits         []WeightedLabel `json:"traits"`          // tonos emocionales pesados por confianza
	LifestyleTags  []WeightedLabel `json:"lifestyle_tags"`  // tags derivados de keywords, peso = apariciones
	SentimentScore float64         `json:"sentiment_score"` // promedio en [-1,1]
	DerivedAt      time.Time       `json:"derived_at"`
}

// CandidateProfile llega de un pool externo y es de solo lectura para el core.
type CandidateProfile struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"first_name,omitempty"`
	Age             int       `json:"age"`
	Locality        string    `json:"locality"`
	LifestyleTags   []string  `json:"lifestyle_tags"`
	EmotionalTraits []string  `json:"emotional_traits"`
	AvailableFrom   time.Time `json:"availability_date"`
	SafetyVerified  bool      `json:"safety_verified"`
}

// ParseDate acepta fechas simples (2006-01-02) o RFC3339 y devuelve UTC.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, s)
	}
	return t.UTC(), nil
}
