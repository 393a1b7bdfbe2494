package voice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"voice-match/internal/domain"
	"voice-match/internal/metrics"
)

// State es el estado del adaptador: Uninitialized -> Initializing -> Ready <-> Recording.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Options controla el polling de inicializacion y los deadlines de grabacion.
type Options struct {
	PollInterval     time.Duration
	InitTimeout      time.Duration
	RecordingTimeout time.Duration
	Language         string
	// CallTimeout acota las llamadas que el adaptador hace por su cuenta (ej: stop al vencer el deadline).
	CallTimeout time.Duration
}

// DefaultOptions devuelve los valores de diseño: poll 100ms, init 10s, grabacion 30s.
func DefaultOptions() Options {
	return Options{
		PollInterval:     100 * time.Millisecond,
		InitTimeout:      10 * time.Second,
		RecordingTimeout: 30 * time.Second,
		Language:         "en-IN",
		CallTimeout:      5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = def.InitTimeout
	}
	if o.RecordingTimeout <= 0 {
		o.RecordingTimeout = def.RecordingTimeout
	}
	if strings.TrimSpace(o.Language) == "" {
		o.Language = def.Language
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = def.CallTimeout
	}
	return o
}

type recording struct {
	params   RecordingParams
	deadline time.Time
	timer    *time.Timer
	stopping bool
}

// Adapter es la fachada sobre la capacidad externa. Una instancia por sesion de intake.
type Adapter struct {
	capability Capability
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Collector

	initGroup singleflight.Group
	attempts  atomic.Int64

	mu        sync.Mutex
	state     State
	recording *recording
	expired   *recording
}

func NewAdapter(capability Capability, opts Options, logger *zap.Logger, collector *metrics.Collector) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		capability: capability,
		opts:       opts.withDefaults(),
		logger:     logger,
		metrics:    collector,
	}
}

// State devuelve el estado actual.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Initialize es idempotente. Los llamadores concurrentes comparten un unico intento en vuelo
// y observan el mismo resultado; si vence el timeout el adaptador queda Uninitialized.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateReady || a.state == StateRecording {
		a.mu.Unlock()
		return nil
	}
	a.state = StateInitializing
	a.mu.Unlock()

	// El loop no depende del ctx del primer llamador: cancelar uno no debe tumbar a los demas.
	ch := a.initGroup.DoChan("initialize", func() (interface{}, error) {
		return nil, a.pollAvailability()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) pollAvailability() error {
	a.mu.Lock()
	if a.state == StateReady || a.state == StateRecording {
		a.mu.Unlock()
		return nil
	}
	a.state = StateInitializing
	a.mu.Unlock()

	a.attempts.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.InitTimeout)
	defer cancel()
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		if a.capability != nil && a.capability.IsAvailable(ctx) {
			a.setStateFrom(StateInitializing, StateReady)
			a.metrics.RecordInit("ready")
			a.logger.Info("voice capability initialized")
			return nil
		}

		select {
		case <-ctx.Done():
			a.setStateFrom(StateInitializing, StateUninitialized)
			a.metrics.RecordInit("timeout")
			a.logger.Warn("voice capability unavailable", zap.Duration("timeout", a.opts.InitTimeout))
			return fmt.Errorf("%w: not available after %s", domain.ErrCapabilityUnavailable, a.opts.InitTimeout)
		case <-ticker.C:
		}
	}
}

func (a *Adapter) setStateFrom(from, to State) {
	a.mu.Lock()
	if a.state == from {
		a.state = to
	}
	a.mu.Unlock()
}

// StartRecording abre la grabacion de una pregunta. Inicializa si hace falta.
// Una segunda llamada mientras se graba falla con ErrInvalidState sin tocar la grabacion abierta.
func (a *Adapter) StartRecording(ctx context.Context, questionID, questionText, languageHint string, timeout time.Duration) error {
	if a.State() == StateRecording {
		return fmt.Errorf("%w: recording already in progress", domain.ErrInvalidState)
	}
	if err := a.Initialize(ctx); err != nil {
		if errors.Is(err, domain.ErrCapabilityUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrCapabilityUnavailable, err)
	}

	recorder, ok := a.capability.(Recorder)
	if !ok {
		return fmt.Errorf("%w: recording not supported", domain.ErrCapabilityUnavailable)
	}

	if strings.TrimSpace(languageHint) == "" {
		languageHint = a.opts.Language
	}
	if timeout <= 0 {
		timeout = a.opts.RecordingTimeout
	}

	rec := &recording{
		params: RecordingParams{
			RecordingID:  uuid.NewString(),
			QuestionID:   questionID,
			QuestionText: questionText,
			Language:     languageHint,
			TimeoutMs:    timeout.Milliseconds(),
		},
		deadline: time.Now().Add(timeout),
	}

	a.mu.Lock()
	switch a.state {
	case StateRecording:
		a.mu.Unlock()
		return fmt.Errorf("%w: recording already in progress", domain.ErrInvalidState)
	case StateReady:
	default:
		a.mu.Unlock()
		return fmt.Errorf("%w: adapter is %s", domain.ErrCapabilityUnavailable, a.state)
	}
	a.state = StateRecording
	a.recording = rec
	a.expired = nil
	a.mu.Unlock()

	if err := recorder.StartRecording(ctx, rec.params); err != nil {
		a.mu.Lock()
		if a.recording == rec {
			a.recording = nil
			a.state = StateReady
		}
		a.mu.Unlock()
		a.logger.Warn("start recording failed", zap.String("question_id", questionID), zap.Error(err))
		return fmt.Errorf("%w: start recording: %v", domain.ErrCapabilityUnavailable, err)
	}

	a.mu.Lock()
	if a.recording == rec && !rec.stopping {
		rec.timer = time.AfterFunc(time.Until(rec.deadline), func() { a.expire(rec) })
	}
	a.mu.Unlock()

	a.metrics.RecordRecordingStarted()
	a.logger.Debug("recording started",
		zap.String("question_id", questionID),
		zap.String("recording_id", rec.params.RecordingID),
		zap.Duration("timeout", timeout),
	)
	return nil
}

// expire corre cuando vence el deadline: libera el estado y deja un resultado vacio para el proximo stop.
func (a *Adapter) expire(rec *recording) {
	a.mu.Lock()
	if a.recording != rec || rec.stopping {
		a.mu.Unlock()
		return
	}
	a.recording = nil
	a.state = StateReady
	a.expired = rec
	a.mu.Unlock()

	a.metrics.RecordRecordingDeadline()
	a.logger.Warn("recording deadline reached",
		zap.String("question_id", rec.params.QuestionID),
		zap.String("recording_id", rec.params.RecordingID),
	)

	if recorder, ok := a.capability.(Recorder); ok {
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.CallTimeout)
		defer cancel()
		if _, err := recorder.StopRecording(ctx, rec.params.RecordingID); err != nil {
			a.logger.Debug("stop after deadline failed", zap.Error(err))
		}
	}
}

// StopRecording cierra la grabacion y devuelve la transcripcion (puede ser vacia).
// Si la grabacion ya vencio por deadline devuelve transcripcion vacia sin error.
func (a *Adapter) StopRecording(ctx context.Context) (string, error) {
	a.mu.Lock()
	rec := a.recording
	if a.state != StateRecording || rec == nil || rec.stopping {
		if a.state != StateRecording && a.expired != nil {
			a.expired = nil
			a.mu.Unlock()
			return "", nil
		}
		a.mu.Unlock()
		return "", fmt.Errorf("%w: no recording in progress", domain.ErrInvalidState)
	}
	rec.stopping = true
	if rec.timer != nil {
		rec.timer.Stop()
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.recording == rec {
			a.recording = nil
			a.state = StateReady
		}
		a.mu.Unlock()
	}()

	recorder, ok := a.capability.(Recorder)
	if !ok {
		return "", fmt.Errorf("%w: recording not supported", domain.ErrCapabilityUnavailable)
	}

	// El deadline es duro tambien durante el stop: pasado el limite la captura queda vacia.
	stopCtx, cancel := context.WithDeadline(ctx, rec.deadline.Add(a.opts.CallTimeout))
	defer cancel()

	transcript, err := recorder.StopRecording(stopCtx, rec.params.RecordingID)
	if err != nil {
		if errors.Is(stopCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			a.metrics.RecordRecordingDeadline()
			a.logger.Warn("recording deadline reached during stop",
				zap.String("question_id", rec.params.QuestionID),
				zap.String("recording_id", rec.params.RecordingID),
			)
			return "", nil
		}
		a.logger.Warn("stop recording failed", zap.String("question_id", rec.params.QuestionID), zap.Error(err))
		return "", fmt.Errorf("%w: stop recording: %v", domain.ErrCapabilityUnavailable, err)
	}
	return transcript, nil
}

// Analyze nunca falla: si la capacidad de analisis no esta o devuelve error, usa atributos neutrales.
func (a *Adapter) Analyze(ctx context.Context, transcript, questionID string) domain.Attributes {
	if strings.TrimSpace(transcript) == "" {
		return domain.NeutralAttributes()
	}

	analyzer, ok := a.capability.(EmotionAnalyzer)
	if !ok {
		a.metrics.RecordAnalysisFallback()
		a.logger.Warn("emotion analysis unavailable, using neutral defaults", zap.String("question_id", questionID))
		return domain.NeutralAttributes()
	}

	attrs, err := analyzer.AnalyzeEmotion(ctx, transcript, questionID)
	if err != nil {
		a.metrics.RecordAnalysisFallback()
		a.logger.Warn("emotion analysis failed, using neutral defaults", zap.String("question_id", questionID), zap.Error(err))
		return domain.NeutralAttributes()
	}
	return NormalizeAttributes(attrs)
}

// Close libera la grabacion abierta (si la hay) y vuelve a Uninitialized.
func (a *Adapter) Close(ctx context.Context) {
	a.mu.Lock()
	rec := a.recording
	if rec != nil && rec.timer != nil {
		rec.timer.Stop()
	}
	a.recording = nil
	a.expired = nil
	a.state = StateUninitialized
	a.mu.Unlock()

	if rec == nil || rec.stopping {
		return
	}
	if recorder, ok := a.capability.(Recorder); ok {
		if _, err := recorder.StopRecording(ctx, rec.params.RecordingID); err != nil {
			a.logger.Debug("stop on close failed", zap.Error(err))
		}
	}
}

// NormalizeAttributes completa tono y sentimiento ausentes igual que el fallback y acota la confianza a [0,1].
func NormalizeAttributes(attrs domain.Attributes) domain.Attributes {
	out := domain.Attributes{
		Tone:       strings.ToLower(strings.TrimSpace(attrs.Tone)),
		Confidence: attrs.Confidence,
		Sentiment:  strings.ToLower(strings.TrimSpace(attrs.Sentiment)),
		Keywords:   NormalizeKeywords(attrs.Keywords),
	}
	if out.Tone == "" {
		out.Tone = domain.ToneNeutral
	}
	if out.Sentiment == "" {
		out.Sentiment = domain.SentimentNeutral
	}
	if math.IsNaN(out.Confidence) {
		out.Confidence = domain.DefaultConfidence
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out
}

// NormalizeKeywords recorta, pasa a minusculas y deduplica preservando el orden.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
