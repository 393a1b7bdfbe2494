package domain

import (
	"slices"
	"time"
)

const (
	ToneNeutral      = "neutral"
	SentimentNeutral = "neutral"
	// DefaultConfidence es la confianza asignada cuando el analisis no esta disponible.
	DefaultConfidence = 0.5
)

// Attributes son los atributos derivados de una respuesta hablada.
type Attributes struct {
	Tone       string   `json:"tone"`
	Confidence float64  `json:"confidence"` // [0,1]
	Sentiment  string   `json:"sentiment"`
	Keywords   []string `json:"keywords"`
}

// NeutralAttributes es el fallback determinista cuando se pierde el analisis.
func NeutralAttributes() Attributes {
	return Attributes{
		Tone:       ToneNeutral,
		Confidence: DefaultConfidence,
		Sentiment:  SentimentNeutral,
		Keywords:   []string{},
	}
}

// Response es inmutable una vez escrita; una nueva captura reemplaza el slot completo.
type Response struct {
	QuestionOrdinal int        `json:"question_ordinal"`
	Transcript      string     `json:"transcript"`
	Attributes      Attributes `json:"attributes"`
	CapturedAt      time.Time  `json:"captured_at"`
}

// IntakeSession es el recorrido de un sujeto por el cuestionario fijo.
type IntakeSession struct {
	ID           string      `json:"id"`
	SubjectID    string      `json:"subject_id"`
	CurrentIndex int         `json:"current_index"`
	Responses    []*Response `json:"responses"` // len == cantidad de preguntas, nil = sin capturar
	Complete     bool        `json:"complete"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	FinalizedAt  *time.Time  `json:"finalized_at,omitempty"`
}

// NewIntakeSession crea una sesion vacia para n preguntas.
func NewIntakeSession(id, subjectID string, n int, now time.Time) IntakeSession {
	return IntakeSession{
		ID:        id,
		SubjectID: subjectID,
		Responses: make([]*Response, n),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Answerable indica si el indice i puede recibir una respuesta.
func (s *IntakeSession) Answerable(i int) bool {
	if i < 0 || i >= len(s.Responses) {
		return false
	}
	return i == 0 || s.Responses[i-1] != nil
}

// HasResponse reporta si el slot i ya tiene una respuesta capturada.
func (s *IntakeSession) HasResponse(i int) bool {
	return i >= 0 && i < len(s.Responses) && s.Responses[i] != nil
}

// HasAllResponses es la condicion de finalizacion: todas las preguntas respondidas.
func (s *IntakeSession) HasAllResponses() bool {
	if len(s.Responses) == 0 {
		return false
	}
	for _, r := range s.Responses {
		if r == nil {
			return false
		}
	}
	return true
}

// Clone devuelve una copia profunda para no compartir slots entre lectores.
func (s IntakeSession) Clone() IntakeSession {
	out := s
	out.Responses = make([]*Response, len(s.Responses))
	for i, r := range s.Responses {
		if r == nil {
			continue
		}
		cp := *r
		cp.Attributes.Keywords = slices.Clone(r.Attributes.Keywords)
		out.Responses[i] = &cp
	}
	if s.FinalizedAt != nil {
		t := *s.FinalizedAt
		out.FinalizedAt = &t
	}
	return out
}
