package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-match/internal/domain"
)

type MatchRepository interface {
	Save(ctx context.Context, set domain.MatchSet) error
	LatestBySubject(ctx context.Context, subjectID string) (domain.MatchSet, error)
}

type PgMatchRepository struct {
	pool *pgxpool.Pool
}

func NewPgMatchRepository(pool *pgxpool.Pool) *PgMatchRepository {
	return &PgMatchRepository{pool: pool}
}

func (r *PgMatchRepository) Save(ctx context.Context, set domain.MatchSet) error {
	const query = `
		INSERT INTO match_sets (id, subject_id, reference_date, results, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	results, err := json.Marshal(set.Results)
	if err != nil {
		return fmt.Errorf("marshal match results: %w", err)
	}
	_, err = r.pool.Exec(ctx, query,
		set.ID,
		set.SubjectID,
		set.ReferenceDate,
		results,
		set.CreatedAt,
	)
	return err
}

func (r *PgMatchRepository) LatestBySubject(ctx context.Context, subjectID string) (domain.MatchSet, error) {
	const query = `
		SELECT id, subject_id, reference_date, results, created_at
		FROM match_sets
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var set domain.MatchSet
	var results []byte
	err := r.pool.QueryRow(ctx, query, subjectID).Scan(
		&set.ID,
		&set.SubjectID,
		&set.ReferenceDate,
		&results,
		&set.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MatchSet{}, domain.ErrMatchesNotFound
	}
	if err != nil {
		return domain.MatchSet{}, err
	}
	if err := json.Unmarshal(results, &set.Results); err != nil {
		return domain.MatchSet{}, fmt.Errorf("unmarshal match results: %w", err)
	}
	return set, nil
}

// MemoryMatchRepository guarda el ultimo ranking por sujeto cuando no hay base de datos.
type MemoryMatchRepository struct {
	mu     sync.RWMutex
	latest map[string]domain.MatchSet
}

func NewMemoryMatchRepository() *MemoryMatchRepository {
	return &MemoryMatchRepository{latest: make(map[string]domain.MatchSet)}
}

func (r *MemoryMatchRepository) Save(_ context.Context, set domain.MatchSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[set.SubjectID] = set
	return nil
}

func (r *MemoryMatchRepository) LatestBySubject(_ context.Context, subjectID string) (domain.MatchSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.latest[subjectID]
	if !ok {
		return domain.MatchSet{}, domain.ErrMatchesNotFound
	}
	return set, nil
}
