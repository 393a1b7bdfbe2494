package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voice-match/internal/domain"
	"voice-match/internal/metrics"
	"voice-match/internal/repository"
	"voice-match/internal/voice"
)

var (
	ErrIntakeNotConfigured = errors.New("intake service not configured")
	ErrRateLimited         = errors.New("too many intake sessions")
)

// sessionRuntime serializa las operaciones de una sesion y es duenio de su adaptador de voz.
type sessionRuntime struct {
	mu      sync.Mutex
	adapter *voice.Adapter
	// recordingIndex es el indice de pregunta de la grabacion abierta o vencida sin consumir; -1 si no hay.
	recordingIndex int
}

// IntakeService recorre el cuestionario fijo, una pregunta activa por vez,
// y solo deja avanzar cuando la pregunta actual tiene respuesta capturada.
type IntakeService struct {
	questions  []domain.Question
	capability voice.Capability
	voiceOpts  voice.Options
	store      IntakeSessionStore
	repo       repository.IntakeRepository
	limiter    SessionLimiter
	metrics    *metrics.Collector
	logger     *zap.Logger

	now   func() time.Time
	newID func() string

	mu        sync.Mutex
	runtimes  map[string]*sessionRuntime
	lastSweep time.Time
}

// runtimeSweepInterval acota cada cuanto BeginSession revisa runtimes de sesiones vencidas.
const runtimeSweepInterval = time.Minute

// NewIntakeService arma el controlador. repo y limiter son opcionales.
func NewIntakeService(
	capability voice.Capability,
	voiceOpts voice.Options,
	store IntakeSessionStore,
	repo repository.IntakeRepository,
	limiter SessionLimiter,
	collector *metrics.Collector,
	logger *zap.Logger,
) *IntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{
		questions:  domain.DefaultQuestions(),
		capability: capability,
		voiceOpts:  voiceOpts,
		store:      store,
		repo:       repo,
		limiter:    limiter,
		metrics:    collector,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		runtimes:   make(map[string]*sessionRuntime),
	}
}

// Questions devuelve el cuestionario en orden; es identico para todas las sesiones.
func (s *IntakeService) Questions() []domain.Question {
	out := make([]domain.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

func (s *IntakeService) BeginSession(ctx context.Context, subjectID string) (domain.IntakeSession, error) {
	if s == nil || s.store == nil {
		return domain.IntakeSession{}, ErrIntakeNotConfigured
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return domain.IntakeSession{}, fmt.Errorf("%w: empty subject id", domain.ErrInvalidInput)
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, subjectID) {
		return domain.IntakeSession{}, ErrRateLimited
	}
	s.sweepRuntimes(ctx)

	session := domain.NewIntakeSession(s.newID(), subjectID, len(s.questions), s.now())
	if err := s.store.Save(ctx, session); err != nil {
		return domain.IntakeSession{}, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("intake session started", zap.String("session_id", session.ID), zap.String("subject_id", subjectID))
	return session, nil
}

func (s *IntakeService) GetSession(ctx context.Context, sessionID string) (domain.IntakeSession, error) {
	if s == nil || s.store == nil {
		return domain.IntakeSession{}, ErrIntakeNotConfigured
	}
	session, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.dropRuntime(ctx, sessionID)
	}
	return session, err
}

// CurrentQuestion falla con ErrSessionComplete una vez recorrida la ultima pregunta.
func (s *IntakeService) CurrentQuestion(ctx context.Context, sessionID string) (domain.Question, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	if session.Complete {
		return domain.Question{}, domain.ErrSessionComplete
	}
	return s.questions[session.CurrentIndex], nil
}

// StartCapture abre la grabacion para la pregunta actual (primera fase de la captura).
func (s *IntakeService) StartCapture(ctx context.Context, sessionID string) (domain.Question, error) {
	rt, session, err := s.lockForCapture(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	defer rt.mu.Unlock()

	if rt.recordingIndex >= 0 && rt.adapter.State() == voice.StateRecording {
		return domain.Question{}, fmt.Errorf("%w: recording already in progress", domain.ErrInvalidState)
	}
	s.drainStale(ctx, rt, sessionID)

	q := s.questions[session.CurrentIndex]
	if err := rt.adapter.StartRecording(ctx, q.ID(), q.Text, "", 0); err != nil {
		return domain.Question{}, err
	}
	rt.recordingIndex = session.CurrentIndex
	return q, nil
}

// CaptureResponse cierra la grabacion de la pregunta actual (abriendola si hace falta),
// analiza la transcripcion y escribe el slot. Recapturar el mismo indice reemplaza la respuesta.
func (s *IntakeService) CaptureResponse(ctx context.Context, sessionID string) (domain.Response, error) {
	rt, session, err := s.lockForCapture(ctx, sessionID)
	if err != nil {
		return domain.Response{}, err
	}
	defer rt.mu.Unlock()

	idx := session.CurrentIndex
	q := s.questions[idx]

	if rt.recordingIndex != idx {
		s.drainStale(ctx, rt, sessionID)
		if err := rt.adapter.StartRecording(ctx, q.ID(), q.Text, "", 0); err != nil {
			return domain.Response{}, err
		}
		rt.recordingIndex = idx
	}

	transcript, err := rt.adapter.StopRecording(ctx)
	rt.recordingIndex = -1
	if err != nil {
		return domain.Response{}, err
	}

	return s.writeResponse(ctx, rt, session, transcript)
}

// SubmitTranscript escribe una respuesta tipeada para la pregunta actual sin pasar por la grabacion.
// Sirve para seguir adelante cuando el servicio de voz no esta disponible.
func (s *IntakeService) SubmitTranscript(ctx context.Context, sessionID, transcript string) (domain.Response, error) {
	rt, session, err := s.lockForCapture(ctx, sessionID)
	if err != nil {
		return domain.Response{}, err
	}
	defer rt.mu.Unlock()

	if rt.recordingIndex >= 0 && rt.adapter.State() == voice.StateRecording {
		return domain.Response{}, fmt.Errorf("%w: recording in progress", domain.ErrInvalidState)
	}
	s.drainStale(ctx, rt, sessionID)
	return s.writeResponse(ctx, rt, session, strings.TrimSpace(transcript))
}

func (s *IntakeService) writeResponse(ctx context.Context, rt *sessionRuntime, session domain.IntakeSession, transcript string) (domain.Response, error) {
	idx := session.CurrentIndex
	q := s.questions[idx]

	resp := domain.Response{
		QuestionOrdinal: q.Ordinal,
		Transcript:      transcript,
		Attributes:      rt.adapter.Analyze(ctx, transcript, q.ID()),
		CapturedAt:      s.now(),
	}
	session.Responses[idx] = &resp
	session.UpdatedAt = resp.CapturedAt
	if err := s.store.Save(ctx, session); err != nil {
		return domain.Response{}, fmt.Errorf("save session: %w", err)
	}

	s.metrics.RecordResponseCaptured()
	s.logger.Debug("response captured",
		zap.String("session_id", session.ID),
		zap.String("question_id", q.ID()),
		zap.Int("transcript_len", len(transcript)),
		zap.String("tone", resp.Attributes.Tone),
	)
	return resp, nil
}

// Advance exige respuesta en la pregunta actual. En la ultima pregunta marca la sesion como completa.
func (s *IntakeService) Advance(ctx context.Context, sessionID string) (domain.IntakeSession, error) {
	rt, session, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return domain.IntakeSession{}, err
	}
	defer rt.mu.Unlock()

	if session.Complete {
		return domain.IntakeSession{}, domain.ErrSessionComplete
	}
	if !session.HasResponse(session.CurrentIndex) {
		return domain.IntakeSession{}, domain.ErrResponseMissing
	}
	if err := s.releaseRecording(ctx, rt, sessionID); err != nil {
		return domain.IntakeSession{}, err
	}

	if session.CurrentIndex == len(session.Responses)-1 {
		session.Complete = true
	} else {
		session.CurrentIndex++
	}
	return s.save(ctx, session)
}

// Retreat vuelve una pregunta atras sin exigir respuesta. Desde una sesion completa
// vuelve a la ultima pregunta.
func (s *IntakeService) Retreat(ctx context.Context, sessionID string) (domain.IntakeSession, error) {
	rt, session, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return domain.IntakeSession{}, err
	}
	defer rt.mu.Unlock()

	if !session.Complete && session.CurrentIndex == 0 {
		return domain.IntakeSession{}, domain.ErrAtStart
	}
	if err := s.releaseRecording(ctx, rt, sessionID); err != nil {
		return domain.IntakeSession{}, err
	}

	if session.Complete {
		session.Complete = false
	} else {
		session.CurrentIndex--
	}
	return s.save(ctx, session)
}

// Finalize deriva el perfil cuando todas las preguntas tienen respuesta.
// Finalizar de nuevo devuelve el mismo perfil sin volver a persistir.
func (s *IntakeService) Finalize(ctx context.Context, sessionID string) (domain.SubjectProfile, error) {
	if s == nil || s.store == nil {
		return domain.SubjectProfile{}, ErrIntakeNotConfigured
	}
	rt := s.runtime(sessionID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.SubjectProfile{}, err
	}
	if session.FinalizedAt != nil {
		s.forgetRuntime(sessionID, rt)
		return BuildSubjectProfile(session, *session.FinalizedAt)
	}
	if !session.HasAllResponses() {
		return domain.SubjectProfile{}, domain.ErrSessionIncomplete
	}

	now := s.now()
	profile, err := BuildSubjectProfile(session, now)
	if err != nil {
		return domain.SubjectProfile{}, err
	}
	session.Complete = true
	session.CurrentIndex = len(session.Responses) - 1
	session.FinalizedAt = &now
	session.UpdatedAt = now

	if s.repo != nil {
		if err := s.repo.SaveFinalized(ctx, session, profile); err != nil {
			return domain.SubjectProfile{}, fmt.Errorf("persist finalized intake: %w", err)
		}
	}
	if err := s.store.Save(ctx, session); err != nil {
		return domain.SubjectProfile{}, fmt.Errorf("save session: %w", err)
	}

	rt.adapter.Close(ctx)
	rt.recordingIndex = -1
	s.forgetRuntime(sessionID, rt)

	s.metrics.RecordSessionFinalized()
	s.logger.Info("intake session finalized",
		zap.String("session_id", session.ID),
		zap.String("subject_id", session.SubjectID),
		zap.Int("traits", len(profile.Traits)),
		zap.Int("lifestyle_tags", len(profile.LifestyleTags)),
	)
	return profile, nil
}

// Profile devuelve el perfil de una sesion finalizada, desde el store o desde el repositorio.
func (s *IntakeService) Profile(ctx context.Context, sessionID string) (domain.SubjectProfile, error) {
	if s == nil || s.store == nil {
		return domain.SubjectProfile{}, ErrIntakeNotConfigured
	}
	session, err := s.store.Get(ctx, sessionID)
	switch {
	case err == nil:
		if session.FinalizedAt == nil {
			return domain.SubjectProfile{}, domain.ErrSessionIncomplete
		}
		return BuildSubjectProfile(session, *session.FinalizedAt)
	case errors.Is(err, domain.ErrSessionNotFound) && s.repo != nil:
		profile, repoErr := s.repo.GetProfileBySession(ctx, sessionID)
		if errors.Is(repoErr, domain.ErrProfileNotFound) {
			return domain.SubjectProfile{}, domain.ErrSessionNotFound
		}
		return profile, repoErr
	default:
		return domain.SubjectProfile{}, err
	}
}

// Close libera los adaptadores de todas las sesiones activas.
func (s *IntakeService) Close(ctx context.Context) {
	s.mu.Lock()
	runtimes := s.runtimes
	s.runtimes = make(map[string]*sessionRuntime)
	s.mu.Unlock()

	for _, rt := range runtimes {
		rt.mu.Lock()
		rt.adapter.Close(ctx)
		rt.recordingIndex = -1
		rt.mu.Unlock()
	}
}

func (s *IntakeService) runtime(sessionID string) *sessionRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[sessionID]
	if !ok {
		rt = &sessionRuntime{
			adapter:        voice.NewAdapter(s.capability, s.voiceOpts, s.logger.With(zap.String("session_id", sessionID)), s.metrics),
			recordingIndex: -1,
		}
		s.runtimes[sessionID] = rt
	}
	return rt
}

func (s *IntakeService) forgetRuntime(sessionID string, rt *sessionRuntime) {
	s.mu.Lock()
	if s.runtimes[sessionID] == rt {
		delete(s.runtimes, sessionID)
	}
	s.mu.Unlock()
}

func (s *IntakeService) dropRuntime(ctx context.Context, sessionID string) {
	s.mu.Lock()
	rt, ok := s.runtimes[sessionID]
	delete(s.runtimes, sessionID)
	s.mu.Unlock()
	if ok {
		rt.adapter.Close(ctx)
	}
}

// sweepRuntimes libera los adaptadores de sesiones que el store ya no tiene (vencidas por TTL).
// Las sesiones ocupadas se saltean; se revisan en la proxima pasada.
func (s *IntakeService) sweepRuntimes(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	if now.Sub(s.lastSweep) < runtimeSweepInterval {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	candidates := make(map[string]*sessionRuntime, len(s.runtimes))
	for id, rt := range s.runtimes {
		candidates[id] = rt
	}
	s.mu.Unlock()

	swept := 0
	for id, rt := range candidates {
		if !rt.mu.TryLock() {
			continue
		}
		_, err := s.store.Get(ctx, id)
		if !errors.Is(err, domain.ErrSessionNotFound) {
			rt.mu.Unlock()
			continue
		}
		rt.adapter.Close(ctx)
		rt.recordingIndex = -1
		rt.mu.Unlock()
		s.forgetRuntime(id, rt)
		swept++
	}
	if swept > 0 {
		s.logger.Debug("expired intake runtimes released", zap.Int("count", swept))
	}
}

// lockSession devuelve el runtime bloqueado y la sesion vigente; el llamador desbloquea.
func (s *IntakeService) lockSession(ctx context.Context, sessionID string) (*sessionRuntime, domain.IntakeSession, error) {
	if s == nil || s.store == nil {
		return nil, domain.IntakeSession{}, ErrIntakeNotConfigured
	}
	rt := s.runtime(sessionID)
	rt.mu.Lock()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		rt.mu.Unlock()
		if errors.Is(err, domain.ErrSessionNotFound) {
			s.dropRuntime(ctx, sessionID)
		}
		return nil, domain.IntakeSession{}, err
	}
	if session.FinalizedAt != nil {
		rt.mu.Unlock()
		s.forgetRuntime(sessionID, rt)
		return nil, domain.IntakeSession{}, domain.ErrSessionFinalized
	}
	return rt, session, nil
}

func (s *IntakeService) lockForCapture(ctx context.Context, sessionID string) (*sessionRuntime, domain.IntakeSession, error) {
	rt, session, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, domain.IntakeSession{}, err
	}
	if session.Complete {
		rt.mu.Unlock()
		return nil, domain.IntakeSession{}, domain.ErrSessionComplete
	}
	if !session.Answerable(session.CurrentIndex) {
		rt.mu.Unlock()
		return nil, domain.IntakeSession{}, fmt.Errorf("%w: question %d not answerable", domain.ErrInvalidState, session.CurrentIndex+1)
	}
	return rt, session, nil
}

// releaseRecording impide moverse con una grabacion abierta y descarta un resultado vencido.
func (s *IntakeService) releaseRecording(ctx context.Context, rt *sessionRuntime, sessionID string) error {
	if rt.recordingIndex < 0 {
		return nil
	}
	if rt.adapter.State() == voice.StateRecording {
		return fmt.Errorf("%w: recording in progress", domain.ErrInvalidState)
	}
	s.drainStale(ctx, rt, sessionID)
	return nil
}

// drainStale consume el resultado vacio que deja una grabacion vencida por deadline.
func (s *IntakeService) drainStale(ctx context.Context, rt *sessionRuntime, sessionID string) {
	if rt.recordingIndex < 0 || rt.adapter.State() == voice.StateRecording {
		return
	}
	if _, err := rt.adapter.StopRecording(ctx); err != nil && !errors.Is(err, domain.ErrInvalidState) {
		s.logger.Debug("drain expired recording failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	rt.recordingIndex = -1
}

func (s *IntakeService) save(ctx context.Context, session domain.IntakeSession) (domain.IntakeSession, error) {
	session.UpdatedAt = s.now()
	if err := s.store.Save(ctx, session); err != nil {
		return domain.IntakeSession{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}
