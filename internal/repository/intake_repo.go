package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-match/internal/domain"
)

// IntakeRepository archiva sesiones finalizadas junto con el perfil derivado.
type IntakeRepository interface {
	SaveFinalized(ctx context.Context, session domain.IntakeSession, profile domain.SubjectProfile) error
	GetProfileBySession(ctx context.Context, sessionID string) (domain.SubjectProfile, error)
}

type PgIntakeRepository struct {
	pool *pgxpool.Pool
}

func NewPgIntakeRepository(pool *pgxpool.Pool) *PgIntakeRepository {
	return &PgIntakeRepository{pool: pool}
}

// SaveFinalized escribe sesion, respuestas y perfil en una sola transaccion.
// Re-finalizar la misma sesion reemplaza respuestas y perfil.
func (r *PgIntakeRepository) SaveFinalized(ctx context.Context, session domain.IntakeSession, profile domain.SubjectProfile) error {
	if session.FinalizedAt == nil {
		return fmt.Errorf("%w: session %s not finalized", domain.ErrInvalidInput, session.ID)
	}
	traits, err := json.Marshal(profile.Traits)
	if err != nil {
		return fmt.Errorf("marshal traits: %w", err)
	}
	tags, err := json.Marshal(profile.LifestyleTags)
	if err != nil {
		return fmt.Errorf("marshal lifestyle tags: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const upsertSession = `
			INSERT INTO intake_sessions (id, subject_id, created_at, finalized_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET finalized_at = EXCLUDED.finalized_at
		`
		if _, err := tx.Exec(ctx, upsertSession, session.ID, session.SubjectID, session.CreatedAt, *session.FinalizedAt); err != nil {
			return fmt.Errorf("upsert intake session: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM intake_responses WHERE session_id = $1`, session.ID); err != nil {
			return fmt.Errorf("clear intake responses: %w", err)
		}

		const insertResponse = `
			INSERT INTO intake_responses (session_id, question_ordinal, transcript, tone, confidence, sentiment, keywords, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		batch := &pgx.Batch{}
		for _, resp := range session.Responses {
			if resp == nil {
				continue
			}
			keywords := resp.Attributes.Keywords
			if keywords == nil {
				keywords = []string{}
			}
			batch.Queue(insertResponse,
				session.ID,
				resp.QuestionOrdinal,
				resp.Transcript,
				resp.Attributes.Tone,
				resp.Attributes.Confidence,
				resp.Attributes.Sentiment,
				keywords,
				resp.CapturedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert intake responses: %w", err)
		}

		const upsertProfile = `
			INSERT INTO subject_profiles (session_id, subject_id, traits, lifestyle_tags, sentiment_score, derived_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id) DO UPDATE SET
				traits = EXCLUDED.traits,
				lifestyle_tags = EXCLUDED.lifestyle_tags,
				sentiment_score = EXCLUDED.sentiment_score,
				derived_at = EXCLUDED.derived_at
		`
		if _, err := tx.Exec(ctx, upsertProfile,
			session.ID,
			profile.SubjectID,
			traits,
			tags,
			profile.SentimentScore,
			profile.DerivedAt,
		); err != nil {
			return fmt.Errorf("upsert subject profile: %w", err)
		}
		return nil
	})
}

func (r *PgIntakeRepository) GetProfileBySession(ctx context.Context, sessionID string) (domain.SubjectProfile, error) {
	const query = `
		SELECT session_id, subject_id, traits, lifestyle_tags, sentiment_score, derived_at
		FROM subject_profiles
		WHERE session_id = $1
	`
	var (
		p         domain.SubjectProfile
		traits    []byte
		tags      []byte
		derivedAt time.Time
	)
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&p.SessionID,
		&p.SubjectID,
		&traits,
		&tags,
		&p.SentimentScore,
		&derivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SubjectProfile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.SubjectProfile{}, err
	}
	if err := json.Unmarshal(traits, &p.Traits); err != nil {
		return domain.SubjectProfile{}, fmt.Errorf("unmarshal traits: %w", err)
	}
	if err := json.Unmarshal(tags, &p.LifestyleTags); err != nil {
		return domain.SubjectProfile{}, fmt.Errorf("unmarshal lifestyle tags: %w", err)
	}
	p.DerivedAt = derivedAt.UTC()
	return p, nil
}
