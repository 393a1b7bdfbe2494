package repository

import (
	"context"
	"errors"
	"testing"

	"voice-match/internal/domain"
)

func TestMemoryMatchRepositoryKeepsLatestPerSubject(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMatchRepository()

	if _, err := repo.LatestBySubject(ctx, "s1"); !errors.Is(err, domain.ErrMatchesNotFound) {
		t.Fatalf("expected ErrMatchesNotFound, got %v", err)
	}

	_ = repo.Save(ctx, domain.MatchSet{ID: "m1", SubjectID: "s1"})
	_ = repo.Save(ctx, domain.MatchSet{ID: "m2", SubjectID: "s1"})
	_ = repo.Save(ctx, domain.MatchSet{ID: "m3", SubjectID: "s2"})

	got, err := repo.LatestBySubject(ctx, "s1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != "m2" {
		t.Fatalf("expected latest m2, got %s", got.ID)
	}
}
