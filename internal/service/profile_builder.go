package service

import (
	"strings"
	"time"

	"voice-match/internal/domain"
)

// keywordTags traduce keywords habladas a los tags de estilo de vida que usan los perfiles candidatos.
var keywordTags = map[string]string{
	"morning":   "Early Bird",
	"early":     "Early Bird",
	"sunrise":   "Early Bird",
	"night":     "Night Owl",
	"late":      "Night Owl",
	"nocturnal": "Night Owl",
	"tidy":      "Clean",
	"clean":     "Clean",
	"neat":      "Clean",
	"organized": "Organized",
	"organised": "Organized",
	"quiet":     "Quiet",
	"silence":   "Quiet",
	"peaceful":  "Quiet",
	"social":    "Social",
	"party":     "Social",
	"friends":   "Social",
	"outgoing":  "Social",
	"lively":    "Social",
	"cook":      "Cook",
	"cooking":   "Cook",
	"kitchen":   "Cook",
	"study":     "Student",
	"student":   "Student",
	"college":   "Student",
	"office":    "Professional",
	"work":      "Professional",
	"gym":       "Fitness",
	"fitness":   "Fitness",
	"workout":   "Fitness",
	"tech":      "Tech",
	"coding":    "Tech",
	"balanced":  "Balanced",
	"mix":       "Balanced",
}

var sentimentValues = map[string]float64{
	"positive": 1,
	"neutral":  0,
	"negative": -1,
}

// TagForKeyword devuelve el tag canonico de una keyword; las desconocidas pasan tal cual.
func TagForKeyword(keyword string) string {
	k := strings.ToLower(strings.TrimSpace(keyword))
	if tag, ok := keywordTags[k]; ok {
		return tag
	}
	return k
}

// BuildSubjectProfile agrega las respuestas de una sesion completa.
// Los tonos neutrales no aportan rasgos; el orden de los multisets es el de primera aparicion.
func BuildSubjectProfile(session domain.IntakeSession, now time.Time) (domain.SubjectProfile, error) {
	if !session.HasAllResponses() {
		return domain.SubjectProfile{}, domain.ErrSessionIncomplete
	}

	traits := newLabelAccumulator()
	lifestyle := newLabelAccumulator()
	sentimentSum := 0.0

	for _, r := range session.Responses {
		tone := strings.ToLower(strings.TrimSpace(r.Attributes.Tone))
		if tone != "" && tone != domain.ToneNeutral {
			traits.add(tone, r.Attributes.Confidence)
		}
		for _, kw := range r.Attributes.Keywords {
			if tag := TagForKeyword(kw); tag != "" {
				lifestyle.add(tag, 1)
			}
		}
		sentimentSum += sentimentValues[strings.ToLower(strings.TrimSpace(r.Attributes.Sentiment))]
	}

	return domain.SubjectProfile{
		SubjectID:      session.SubjectID,
		SessionID:      session.ID,
		Traits:         traits.labels(),
		LifestyleTags:  lifestyle.labels(),
		SentimentScore: sentimentSum / float64(len(session.Responses)),
		DerivedAt:      now,
	}, nil
}

type labelAccumulator struct {
	index map[string]int
	out   []domain.WeightedLabel
}

func newLabelAccumulator() *labelAccumulator {
	return &labelAccumulator{index: make(map[string]int)}
}

func (a *labelAccumulator) add(label string, weight float64) {
	if i, ok := a.index[label]; ok {
		a.out[i].Weight += weight
		a.out[i].Count++
		return
	}
	a.index[label] = len(a.out)
	a.out = append(a.out, domain.WeightedLabel{Label: label, Weight: weight, Count: 1})
}

func (a *labelAccumulator) labels() []domain.WeightedLabel {
	if a.out == nil {
		return []domain.WeightedLabel{}
	}
	return a.out
}
