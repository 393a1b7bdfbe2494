package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"voice-match/internal/domain"
	"voice-match/internal/voice"
)

type mockVoiceCapability struct {
	mu         sync.Mutex
	available  bool
	transcript string
	attrs      domain.Attributes
	analyzeErr error
	stopErr    error
	starts     int
	open       int
	maxOpen    int
	questions  []string
}

func newMockVoice() *mockVoiceCapability {
	return &mockVoiceCapability{
		available:  true,
		transcript: "I wake up early and keep things tidy",
		attrs:      domain.Attributes{Tone: "calm", Confidence: 0.8, Sentiment: "positive", Keywords: []string{"morning", "tidy"}},
	}
}

func (m *mockVoiceCapability) IsAvailable(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *mockVoiceCapability) StartRecording(ctx context.Context, params voice.RecordingParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.open++
	if m.open > m.maxOpen {
		m.maxOpen = m.open
	}
	m.questions = append(m.questions, params.QuestionID)
	return nil
}

func (m *mockVoiceCapability) StopRecording(ctx context.Context, recordingID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open > 0 {
		m.open--
	}
	return m.transcript, m.stopErr
}

func (m *mockVoiceCapability) AnalyzeEmotion(ctx context.Context, text, questionID string) (domain.Attributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attrs, m.analyzeErr
}

type mockIntakeRepo struct {
	mu       sync.Mutex
	saved    int
	session  domain.IntakeSession
	profile  domain.SubjectProfile
	saveErr  error
	profiles map[string]domain.SubjectProfile
}

func (m *mockIntakeRepo) SaveFinalized(ctx context.Context, session domain.IntakeSession, profile domain.SubjectProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved++
	m.session = session
	m.profile = profile
	return nil
}

func (m *mockIntakeRepo) GetProfileBySession(ctx context.Context, sessionID string) (domain.SubjectProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[sessionID]
	if !ok {
		return domain.SubjectProfile{}, domain.ErrProfileNotFound
	}
	return p, nil
}

type mockLimiter struct {
	allow bool
	keys  []string
}

func (m *mockLimiter) Allow(ctx context.Context, key string) bool {
	m.keys = append(m.keys, key)
	return m.allow
}

func testVoiceOptions() voice.Options {
	return voice.Options{
		PollInterval:     2 * time.Millisecond,
		InitTimeout:      100 * time.Millisecond,
		RecordingTimeout: time.Second,
		CallTimeout:      100 * time.Millisecond,
	}
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestIntakeService(capability voice.Capability, opts voice.Options) (*IntakeService, *mockIntakeRepo) {
	repo := &mockIntakeRepo{}
	svc := NewIntakeService(capability, opts, NewMemoryIntakeSessionStore(time.Hour), repo, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func TestIntakeServiceFullWalk(t *testing.T) {
	ctx := context.Background()
	capability := newMockVoice()
	svc, repo := newTestIntakeService(capability, testVoiceOptions())

	session, err := svc.BeginSession(ctx, " subject-1 ")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if session.SubjectID != "subject-1" || len(session.Responses) != 8 {
		t.Fatalf("unexpected session %+v", session)
	}

	q, err := svc.CurrentQuestion(ctx, session.ID)
	if err != nil || q.Ordinal != 1 {
		t.Fatalf("expected first question, got %+v err=%v", q, err)
	}

	if _, err := svc.Advance(ctx, session.ID); !errors.Is(err, domain.ErrResponseMissing) {
		t.Fatalf("expected ErrResponseMissing, got %v", err)
	}

	for i := 0; i < 8; i++ {
		resp, err := svc.CaptureResponse(ctx, session.ID)
		if err != nil {
			t.Fatalf("capture %d failed: %v", i, err)
		}
		if resp.QuestionOrdinal != i+1 || resp.Transcript == "" || resp.Attributes.Tone != "calm" {
			t.Fatalf("unexpected response %+v", resp)
		}
		if _, err := svc.Advance(ctx, session.ID); err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
	}

	snapshot, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !snapshot.Complete || snapshot.CurrentIndex != 7 {
		t.Fatalf("expected complete session at last index, got complete=%v index=%d", snapshot.Complete, snapshot.CurrentIndex)
	}
	if _, err := svc.CurrentQuestion(ctx, session.ID); !errors.Is(err, domain.ErrSessionComplete) {
		t.Fatalf("expected ErrSessionComplete, got %v", err)
	}
	if _, err := svc.CaptureResponse(ctx, session.ID); !errors.Is(err, domain.ErrSessionComplete) {
		t.Fatalf("expected capture on complete session to fail, got %v", err)
	}
	if _, err := svc.Advance(ctx, session.ID); !errors.Is(err, domain.ErrSessionComplete) {
		t.Fatalf("expected advance on complete session to fail, got %v", err)
	}

	profile, err := svc.Finalize(ctx, session.ID)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if profile.SubjectID != "subject-1" || len(profile.Traits) != 1 || profile.Traits[0].Count != 8 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if profile.SentimentScore != 1 {
		t.Fatalf("expected sentiment 1, got %v", profile.SentimentScore)
	}
	if repo.saved != 1 || repo.session.FinalizedAt == nil {
		t.Fatalf("expected finalized intake persisted once, got %d", repo.saved)
	}

	again, err := svc.Finalize(ctx, session.ID)
	if err != nil {
		t.Fatalf("second finalize failed: %v", err)
	}
	if again.DerivedAt != profile.DerivedAt || repo.saved != 1 {
		t.Fatalf("expected idempotent finalize")
	}

	if _, err := svc.CaptureResponse(ctx, session.ID); !errors.Is(err, domain.ErrSessionFinalized) {
		t.Fatalf("expected ErrSessionFinalized, got %v", err)
	}
	if _, err := svc.Retreat(ctx, session.ID); !errors.Is(err, domain.ErrSessionFinalized) {
		t.Fatalf("expected ErrSessionFinalized on retreat, got %v", err)
	}

	fromStore, err := svc.Profile(ctx, session.ID)
	if err != nil {
		t.Fatalf("profile lookup failed: %v", err)
	}
	if fromStore.SessionID != session.ID || len(fromStore.LifestyleTags) != len(profile.LifestyleTags) {
		t.Fatalf("unexpected stored profile %+v", fromStore)
	}
}

func TestIntakeServiceRecaptureOverwrites(t *testing.T) {
	ctx := context.Background()
	capability := newMockVoice()
	svc, _ := newTestIntakeService(capability, testVoiceOptions())
	session, _ := svc.BeginSession(ctx, "subject-1")

	if _, err := svc.CaptureResponse(ctx, session.ID); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	capability.mu.Lock()
	capability.transcript = "actually I am a night person"
	capability.mu.Unlock()
	if _, err := svc.CaptureResponse(ctx, session.ID); err != nil {
		t.Fatalf("recapture failed: %v", err)
	}

	snapshot, _ := svc.GetSession(ctx, session.ID)
	answered := 0
	for _, r := range snapshot.Responses {
		if r != nil {
			answered++
		}
	}
	if answered != 1 || snapshot.Responses[0].Transcript != "actually I am a night person" {
		t.Fatalf("expected single overwritten response, got %d answered, first=%+v", answered, snapshot.Responses[0])
	}
}

func TestIntakeServiceFinalizeIncomplete(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestIntakeService(newMockVoice(), testVoiceOptions())
	session, _ := svc.BeginSession(ctx, "subject-1")

	if _, err := svc.CaptureResponse(ctx, session.ID); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if _, err := svc.Finalize(ctx, session.ID); !errors.Is(err, domain.ErrSessionIncomplete) {
		t.Fatalf("expected ErrSessionIncomplete, got %v", err)
	}
	if _, err := svc.Profile(ctx, session.ID); !errors.Is(err, domain.ErrSessionIncomplete) {
		t.Fatalf("expected ErrSessionIncomplete from profile, got %v", err)
	}
	if repo.saved != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

func TestIntakeServiceRetreat(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestIntakeService(newMockVoice(), testVoiceOptions())
	session, _ := svc.BeginSession(ctx, "subject-1")

	if _, err := svc.Retreat(ctx, session.ID); !errors.Is(err, domain.ErrAtStart) {
		t.Fatalf("expected ErrAtStart, got %v", err)
	}

	if _, err := svc.CaptureResponse(ctx, session.ID); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if _, err := svc.Advance(ctx, session.ID); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	// retroceder no exige respuesta en la pregunta actual
	s, err := svc.Retreat(ctx, session.ID)
	if err != nil {
		t.Fatalf("retreat failed: %v", err)
	}
	if s.CurrentIndex != 0 {
		t.Fatalf("expected index 0, got %d", s.CurrentIndex)
	}

	for i := 0; i < 8; i++ {
		if _, err := svc.CaptureResponse(ctx, session.ID); err != nil {
			t.Fatalf("capture %d failed: %v", i, err)
		}
		if _, err := svc.Advance(ctx, session.ID); err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
	}

	s, err = svc.Retreat(ctx, session.ID)
	if err != nil {
		t.Fatalf("retreat from complete failed: %v", err)
	}
	if s.Complete || s.CurrentIndex != 7 {
		t.Fatalf("expected last question reopened, got complete=%v index=%d", s.Complete, s.CurrentIndex)
	}
	q, err := svc.CurrentQuestion(ctx, session.ID)
	if err != nil || q.Ordinal != 8 {
		t.Fatalf("expected question 8, got %+v err=%v", q, err)
	}
}

func TestIntakeServiceTwoPhaseCapture(t *testing.T) {
	ctx := context.Background()
	capability := newMockVoice()
	svc, _ := newTestIntakeService(capability, testVoiceOptions())
	session, _ := svc.BeginSession(ctx, "subject-1")

	q, err := svc.StartCapture(ctx, session.ID)
	if err != nil {
		t.Fatalf("start capture failed: %v", err)
	}
	if q.ID() != "q1" {
		t.Fatalf("expected q1, got %s", q.ID())
	}
	if _, err := svc.StartCapture(ctx, session.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double start, got %v", err)
	}

	resp, err := svc.CaptureResponse(ctx, session.ID)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if resp.Transcript != capability.transcript {
		t.Fatalf("unexpected transcript %q", resp.Transcript)
	}
	if capability.starts != 1 {
		t.Fatalf("expected the open recording to be reused, got %d starts", capability.starts)
	}

	if _, err := svc.StartCapture(ctx, session.ID); err != nil {
		t.Fatalf("re-record start failed: %v", err)
	}
	if _, err := svc.Advance(ctx, session.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState advancing while recording, got %v", err)
	}
}

func TestIntakeServiceRecordingDeadlineYieldsEmptyResponse(t *testing.T) {
	ctx := context.Background()
	opts := testVoiceOptions()
	opts.RecordingTimeout = 20 * time.Millisecond
	capability := newMockVoice()
	svc, _ := newTestIntakeService(capability, opts)
	session, _ := svc.BeginSession(ctx, "subject-1")

	if _, err := svc.StartCapture(ctx, session.ID); err != nil {
		t.Fatalf("start capture failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	resp, err := svc.CaptureResponse(ctx, session.ID)
	if err != nil {
		t.Fatalf("capture after deadline failed: %v", err)
	}
	if resp.Transcript != "" {
		t.Fatalf("expected empty transcript after deadline, got %q", resp.Transcript)
	}
	if resp.Attributes.Tone != domain.ToneNeutral || len(resp.Attributes.Keywords) != 0 {
		t.Fatalf("expected neutral attributes, got %+v", resp.Attributes)
	}
	if _, err := svc.Advance(ctx, session.ID); err != nil {
		t.Fatalf("advance after empty capture failed: %v", err)
	}
}

func TestIntakeServiceCapabilityUnavailable(t *testing.T) {
	ctx := context.Background()
	capability := newMockVoice()
	capability.available = false
	opts := testVoiceOptions()
	opts.InitTimeout = 20 * time.Millisecond
	svc, _ := newTestIntakeService(capability, opts)
	session, _ := svc.BeginSession(ctx, "subject-1")

	if _, err := svc.CaptureResponse(ctx, session.ID); !errors.Is(err, domain.ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
	snapshot, _ := svc.GetSession(ctx, session.ID)
	if snapshot.HasResponse(0) {
		t.Fatalf("expected slot untouched after failed capture")
	}

	resp, err := svc.SubmitTranscript(ctx, session.ID, "  quiet mornings  ")
	if err != nil {
		t.Fatalf("typed fallback failed: %v", err)
	}
	if resp.Transcript != "quiet mornings" {
		t.Fatalf("expected trimmed transcript, got %q", resp.Transcript)
	}
	if _, err := svc.Advance(ctx, session.ID); err != nil {
		t.Fatalf("advance after typed response failed: %v", err)
	}

	capability.mu.Lock()
	capability.available = true
	capability.mu.Unlock()
	if _, err := svc.CaptureResponse(ctx, session.ID); err != nil {
		t.Fatalf("expected retry to succeed once capability is back, got %v", err)
	}
}

func TestIntakeServiceAnalysisFailureDegrades(t *testing.T) {
	ctx := context.Background()
	capability := newMockVoice()
	capability.analyzeErr = errors.New("analysis down")
	svc, _ := newTestIntakeService(capability, testVoiceOptions())
	session, _ := svc.BeginSession(ctx, "subject-1")

	resp, err := svc.CaptureResponse(ctx, session.ID)
	if err != nil {
		t.Fatalf("expected capture to succeed, got %v", err)
	}
	if resp.Attributes.Tone != domain.ToneNeutral || resp.Attributes.Confidence != domain.DefaultConfidence {
		t.Fatalf("expected neutral fallback, got %+v", resp.Attributes)
	}
}

func TestIntakeServiceFinalizeKeepsEmptyKeywords(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestIntakeService(newMockVoice(), testVoiceOptions())
	session, _ := svc.BeginSession(ctx, "subject-1")

	for i := 0; i < 8; i++ {
		// una respuesta vacia toma los atributos neutrales, sin keywords
		if _, err := svc.SubmitTranscript(ctx, session.ID, "  "); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		if _, err := svc.Advance(ctx, session.ID); err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
	}

	stored, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Responses[0].Attributes.Keywords == nil {
		t.Fatalf("expected empty keywords to survive the store, got nil")
	}

	if _, err := svc.Finalize(ctx, session.ID); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	for i, resp := range repo.session.Responses {
		if resp == nil || resp.Attributes.Keywords == nil {
			t.Fatalf("expected non-nil keywords in persisted response %d, got %+v", i, resp)
		}
	}
}

func TestIntakeServiceStopFailureLeavesSlotEmpty(t *testing.T) {
	ctx := context.Background()
	capability := newMockVoice()
	capability.stopErr = errors.New("device lost")
	svc, _ := newTestIntakeService(capability, testVoiceOptions())
	session, _ := svc.BeginSession(ctx, "subject-1")

	if _, err := svc.CaptureResponse(ctx, session.ID); err == nil {
		t.Fatalf("expected stop failure to surface")
	}
	snapshot, _ := svc.GetSession(ctx, session.ID)
	if snapshot.HasResponse(0) {
		t.Fatalf("expected slot untouched after stop failure")
	}

	capability.mu.Lock()
	capability.stopErr = nil
	capability.mu.Unlock()
	if _, err := svc.CaptureResponse(ctx, session.ID); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestIntakeServiceConcurrentCapturesAreSerialized(t *testing.T) {
	ctx := context.Background()
	capability := newMockVoice()
	svc, _ := newTestIntakeService(capability, testVoiceOptions())
	session, _ := svc.BeginSession(ctx, "subject-1")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CaptureResponse(ctx, session.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected capture error: %v", err)
	}

	capability.mu.Lock()
	defer capability.mu.Unlock()
	if capability.maxOpen != 1 {
		t.Fatalf("expected at most one open recording, got %d", capability.maxOpen)
	}
	if capability.starts != 8 {
		t.Fatalf("expected 8 recordings, got %d", capability.starts)
	}
}

func TestIntakeServiceSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestIntakeService(newMockVoice(), testVoiceOptions())
	a, _ := svc.BeginSession(ctx, "subject-a")
	b, _ := svc.BeginSession(ctx, "subject-b")

	if _, err := svc.StartCapture(ctx, a.ID); err != nil {
		t.Fatalf("start a failed: %v", err)
	}
	if _, err := svc.StartCapture(ctx, b.ID); err != nil {
		t.Fatalf("start b should not be blocked by a, got %v", err)
	}
	if _, err := svc.CaptureResponse(ctx, b.ID); err != nil {
		t.Fatalf("capture b failed: %v", err)
	}
	if _, err := svc.CaptureResponse(ctx, a.ID); err != nil {
		t.Fatalf("capture a failed: %v", err)
	}
}

func TestIntakeServiceBeginSessionGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("empty subject", func(t *testing.T) {
		svc, _ := newTestIntakeService(newMockVoice(), testVoiceOptions())
		if _, err := svc.BeginSession(ctx, "  "); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		svc, _ := newTestIntakeService(newMockVoice(), testVoiceOptions())
		limiter := &mockLimiter{allow: false}
		svc.limiter = limiter
		if _, err := svc.BeginSession(ctx, "subject-1"); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if len(limiter.keys) != 1 || limiter.keys[0] != "subject-1" {
			t.Fatalf("expected limiter keyed by subject, got %v", limiter.keys)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		var svc *IntakeService
		if _, err := svc.BeginSession(ctx, "subject-1"); !errors.Is(err, ErrIntakeNotConfigured) {
			t.Fatalf("expected ErrIntakeNotConfigured, got %v", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		svc, _ := newTestIntakeService(newMockVoice(), testVoiceOptions())
		if _, err := svc.CurrentQuestion(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
		if _, err := svc.Advance(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound on advance, got %v", err)
		}
	})
}

func TestIntakeServiceProfileFromRepository(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestIntakeService(newMockVoice(), testVoiceOptions())
	repo.profiles = map[string]domain.SubjectProfile{
		"archived": {SubjectID: "subject-9", SessionID: "archived"},
	}

	p, err := svc.Profile(ctx, "archived")
	if err != nil {
		t.Fatalf("expected archived profile, got %v", err)
	}
	if p.SubjectID != "subject-9" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if _, err := svc.Profile(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestIntakeServiceSweepsExpiredRuntimes(t *testing.T) {
	ctx := context.Background()
	clock := testNow
	store := NewMemoryIntakeSessionStore(time.Hour).(*memoryIntakeSessionStore)
	store.now = func() time.Time { return clock }
	svc := NewIntakeService(newMockVoice(), testVoiceOptions(), store, nil, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return clock }

	abandoned, _ := svc.BeginSession(ctx, "subject-1")
	active, _ := svc.BeginSession(ctx, "subject-2")
	if _, err := svc.SubmitTranscript(ctx, abandoned.ID, "I cook"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	clock = clock.Add(30 * time.Minute)
	if _, err := svc.SubmitTranscript(ctx, active.ID, "I run"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(svc.runtimes) != 2 {
		t.Fatalf("expected 2 runtimes, got %d", len(svc.runtimes))
	}

	clock = clock.Add(40 * time.Minute)
	if _, err := svc.BeginSession(ctx, "subject-3"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if _, ok := svc.runtimes[abandoned.ID]; ok {
		t.Fatalf("expected runtime of expired session released")
	}
	if _, ok := svc.runtimes[active.ID]; !ok {
		t.Fatalf("expected runtime of live session kept")
	}
}
