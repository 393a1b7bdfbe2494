package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"voice-match/internal/domain"
)

// CandidateRepository expone el pool de candidatos; es de solo lectura para el core.
type CandidateRepository interface {
	ListActive(ctx context.Context) ([]domain.CandidateProfile, error)
}

type PgCandidateRepository struct {
	pool *pgxpool.Pool
}

func NewPgCandidateRepository(pool *pgxpool.Pool) *PgCandidateRepository {
	return &PgCandidateRepository{pool: pool}
}

func (r *PgCandidateRepository) ListActive(ctx context.Context) ([]domain.CandidateProfile, error) {
	const query = `
		SELECT id, first_name, age, locality, lifestyle_tags, emotional_traits, available_from, safety_verified
		FROM candidates
		WHERE active = TRUE
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]domain.CandidateProfile, 0)
	for rows.Next() {
		var c domain.CandidateProfile
		var available *time.Time

		if err := rows.Scan(
			&c.ID,
			&c.FirstName,
			&c.Age,
			&c.Locality,
			&c.LifestyleTags,
			&c.EmotionalTraits,
			&available,
			&c.SafetyVerified,
		); err != nil {
			return nil, err
		}
		if available != nil {
			c.AvailableFrom = *available
		}
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return candidates, nil
}

// StaticCandidateRepository sirve un pool fijo cargado en memoria (archivo JSON o tests).
type StaticCandidateRepository struct {
	candidates []domain.CandidateProfile
}

func NewStaticCandidateRepository(candidates []domain.CandidateProfile) *StaticCandidateRepository {
	cp := make([]domain.CandidateProfile, len(candidates))
	copy(cp, candidates)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })
	return &StaticCandidateRepository{candidates: cp}
}

func (r *StaticCandidateRepository) ListActive(_ context.Context) ([]domain.CandidateProfile, error) {
	out := make([]domain.CandidateProfile, len(r.candidates))
	copy(out, r.candidates)
	return out, nil
}

// candidateFile acepta "availability_date" como fecha simple (2006-01-02) o RFC3339.
type candidateFile struct {
	domain.CandidateProfile
	AvailabilityDate string `json:"availability_date"`
}

// LoadCandidatesFile lee un arreglo JSON de candidatos.
func LoadCandidatesFile(path string) ([]domain.CandidateProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}
	var items []candidateFile
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse candidates file: %w", err)
	}
	out := make([]domain.CandidateProfile, 0, len(items))
	for _, it := range items {
		c := it.CandidateProfile
		if it.AvailabilityDate != "" {
			t, err := domain.ParseDate(it.AvailabilityDate)
			if err != nil {
				return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
			}
			c.AvailableFrom = t
		}
		out = append(out, c)
	}
	return out, nil
}
