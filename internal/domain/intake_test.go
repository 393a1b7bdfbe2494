package domain

import (
	"testing"
	"time"
)

func TestIntakeSessionCloneIsDeep(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewIntakeSession("sess-1", "s1", 3, now)
	s.Responses[0] = &Response{QuestionOrdinal: 1, Attributes: NeutralAttributes(), CapturedAt: now}
	s.Responses[1] = &Response{QuestionOrdinal: 2, Attributes: Attributes{Tone: "calm", Keywords: []string{"tidy"}}}
	s.FinalizedAt = &now

	cp := s.Clone()

	if cp.Responses[0].Attributes.Keywords == nil {
		t.Fatalf("expected empty keywords to stay non-nil")
	}
	if cp.Responses[2] != nil {
		t.Fatalf("expected empty slot to stay empty")
	}

	cp.Responses[1].Attributes.Keywords[0] = "messy"
	cp.Responses[1].Transcript = "changed"
	*cp.FinalizedAt = now.Add(time.Hour)
	if s.Responses[1].Attributes.Keywords[0] != "tidy" || s.Responses[1].Transcript != "" {
		t.Fatalf("expected original response untouched, got %+v", s.Responses[1])
	}
	if !s.FinalizedAt.Equal(now) {
		t.Fatalf("expected original finalized time untouched")
	}
}
