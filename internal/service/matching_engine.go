package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"voice-match/internal/domain"
)

// Pesos del puntaje de compatibilidad (40/40/10/10).
const (
	tagWeight          = 40.0
	traitWeight        = 40.0
	availabilityWeight = 10.0
	verifiedBonus      = 10.0

	availabilityFullDays  = 30
	availabilityDecayDays = 60
)

// MatchingEngine puntua y ordena candidatos. No hace I/O ni guarda estado.
type MatchingEngine struct{}

// DefaultMatchingEngine permite uso directo sin instanciar.
var DefaultMatchingEngine = MatchingEngine{}

// Rank devuelve los candidatos ordenados por puntaje descendente y luego por ID ascendente.
// Un pool vacio devuelve un slice vacio. Un candidato mal formado aborta con ErrInvalidInput.
func (e MatchingEngine) Rank(profile domain.SubjectProfile, candidates []domain.CandidateProfile, referenceDate time.Time) ([]domain.MatchResult, error) {
	for i, c := range candidates {
		if err := validateCandidate(c); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	subjectTags := make(map[string]struct{}, len(profile.LifestyleTags))
	for _, t := range profile.LifestyleTags {
		if key := normalizeLabel(t.Label); key != "" {
			subjectTags[key] = struct{}{}
		}
	}
	subjectTraits := make(map[string]float64, len(profile.Traits))
	for _, t := range profile.Traits {
		if key := normalizeLabel(t.Label); key != "" {
			subjectTraits[key] += t.MeanWeight()
		}
	}

	results := make([]domain.MatchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, e.score(subjectTags, subjectTraits, c, referenceDate))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CandidateID < results[j].CandidateID
	})
	return results, nil
}

func (MatchingEngine) score(subjectTags map[string]struct{}, subjectTraits map[string]float64, c domain.CandidateProfile, ref time.Time) domain.MatchResult {
	matched := make([]string, 0)

	candidateTags := make(map[string]struct{}, len(c.LifestyleTags))
	intersection := 0
	for _, tag := range c.LifestyleTags {
		key := normalizeLabel(tag)
		if key == "" {
			continue
		}
		if _, dup := candidateTags[key]; dup {
			continue
		}
		candidateTags[key] = struct{}{}
		if _, ok := subjectTags[key]; ok {
			intersection++
			matched = append(matched, tag)
		}
	}
	union := len(subjectTags) + len(candidateTags) - intersection

	var breakdown domain.ScoreBreakdown
	breakdown.Tags = tagWeight * float64(intersection) / float64(max(1, union))

	seenTraits := make(map[string]struct{}, len(c.EmotionalTraits))
	confidenceSum := 0.0
	for _, trait := range c.EmotionalTraits {
		key := normalizeLabel(trait)
		if key == "" {
			continue
		}
		if _, dup := seenTraits[key]; dup {
			continue
		}
		seenTraits[key] = struct{}{}
		if conf, ok := subjectTraits[key]; ok {
			confidenceSum += conf
			matched = append(matched, trait)
		}
	}
	breakdown.Traits = math.Min(traitWeight, traitWeight*confidenceSum/float64(max(1, len(subjectTraits))))

	breakdown.Availability = availabilityScore(c.AvailableFrom, ref)
	if c.SafetyVerified {
		breakdown.Verification = verifiedBonus
	}

	total := breakdown.Tags + breakdown.Traits + breakdown.Availability + breakdown.Verification
	total = math.Max(0, math.Min(100, total))

	return domain.MatchResult{
		CandidateID: c.ID,
		Score:       int(math.Round(total)),
		Matched:     matched,
		Breakdown:   breakdown,
	}
}

// availabilityScore da puntaje completo hasta 30 dias despues de la referencia (fechas pasadas incluidas)
// y decae linealmente a 0 en los 60 dias siguientes. Compara dias calendario en UTC.
func availabilityScore(available, ref time.Time) float64 {
	if available.IsZero() {
		return 0
	}
	days := int(math.Round(truncateDay(available).Sub(truncateDay(ref)).Hours() / 24))
	switch {
	case days <= availabilityFullDays:
		return availabilityWeight
	case days <= availabilityFullDays+availabilityDecayDays:
		remaining := float64(availabilityFullDays + availabilityDecayDays - days)
		return availabilityWeight * remaining / availabilityDecayDays
	default:
		return 0
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validateCandidate(c domain.CandidateProfile) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: empty candidate id", domain.ErrInvalidInput)
	}
	if c.Age < 0 {
		return fmt.Errorf("%w: negative age for candidate %s", domain.ErrInvalidInput, c.ID)
	}
	return nil
}

// normalizeLabel hace que "Early Bird", "early-bird" y "EarlyBird" comparen igual.
func normalizeLabel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '-', '_', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
