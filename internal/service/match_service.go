package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voice-match/internal/domain"
	"voice-match/internal/metrics"
	"voice-match/internal/repository"
)

var ErrNoCandidatePool = errors.New("no candidate pool configured")

// RankRequest describe un pedido de ranking. Candidates nil carga el pool del repositorio;
// ReferenceDate cero usa la fecha actual; MinScore nil usa el piso configurado.
type RankRequest struct {
	Profile       domain.SubjectProfile
	Candidates    []domain.CandidateProfile
	ReferenceDate time.Time
	MinScore      *int
}

// MatchService rodea al motor puro con carga del pool, persistencia y metricas.
type MatchService struct {
	engine     MatchingEngine
	candidates repository.CandidateRepository
	matches    repository.MatchRepository
	minScore   int
	metrics    *metrics.Collector
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewMatchService(
	candidates repository.CandidateRepository,
	matches repository.MatchRepository,
	minScore int,
	collector *metrics.Collector,
	logger *zap.Logger,
) *MatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchService{
		engine:     DefaultMatchingEngine,
		candidates: candidates,
		matches:    matches,
		minScore:   minScore,
		metrics:    collector,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

func (s *MatchService) Rank(ctx context.Context, req RankRequest) (domain.MatchSet, error) {
	start := time.Now()

	candidates := req.Candidates
	if candidates == nil {
		if s.candidates == nil {
			return domain.MatchSet{}, ErrNoCandidatePool
		}
		pool, err := s.candidates.ListActive(ctx)
		if err != nil {
			return domain.MatchSet{}, fmt.Errorf("load candidate pool: %w", err)
		}
		candidates = pool
	}

	ref := req.ReferenceDate
	if ref.IsZero() {
		ref = s.now()
	}
	y, m, d := ref.UTC().Date()
	ref = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	results, err := s.engine.Rank(req.Profile, candidates, ref)
	if err != nil {
		return domain.MatchSet{}, err
	}

	floor := s.minScore
	if req.MinScore != nil {
		floor = *req.MinScore
	}
	if floor > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= floor {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	set := domain.MatchSet{
		ID:            s.newID(),
		SubjectID:     req.Profile.SubjectID,
		ReferenceDate: ref,
		Results:       results,
		CreatedAt:     s.now(),
	}

	if s.matches != nil && strings.TrimSpace(set.SubjectID) != "" {
		if err := s.matches.Save(ctx, set); err != nil {
			s.logger.Warn("match set persist failed", zap.String("subject_id", set.SubjectID), zap.Error(err))
			return domain.MatchSet{}, fmt.Errorf("save match set: %w", err)
		}
	}

	s.metrics.RecordRanking(time.Since(start))
	s.logger.Info("ranking served",
		zap.String("subject_id", set.SubjectID),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Int("floor", floor),
	)
	return set, nil
}

// ListMatches devuelve el ultimo ranking persistido del sujeto.
func (s *MatchService) ListMatches(ctx context.Context, subjectID string) (domain.MatchSet, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return domain.MatchSet{}, fmt.Errorf("%w: empty subject id", domain.ErrInvalidInput)
	}
	if s.matches == nil {
		return domain.MatchSet{}, domain.ErrMatchesNotFound
	}
	return s.matches.LatestBySubject(ctx, subjectID)
}
