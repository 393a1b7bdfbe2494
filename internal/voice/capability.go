// Package voice envuelve la capacidad externa de analisis de voz detras de un adaptador seguro y reintentable.
package voice

import (
	"context"
	"errors"

	"voice-match/internal/domain"
)

// ErrNotSupported indica que la capacidad no expone la operacion pedida.
var ErrNotSupported = errors.New("operation not supported by voice capability")

// RecordingParams viaja al servicio de voz al abrir una grabacion.
type RecordingParams struct {
	RecordingID  string `json:"recording_id"`
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
	Language     string `json:"language"`
	TimeoutMs    int64  `json:"timeout"`
}

// Capability es el contrato minimo: saber si el servicio externo esta disponible.
type Capability interface {
	IsAvailable(ctx context.Context) bool
}

// Recorder es opcional; el adaptador lo descubre por type assertion.
type Recorder interface {
	StartRecording(ctx context.Context, params RecordingParams) error
	StopRecording(ctx context.Context, recordingID string) (string, error)
}

// EmotionAnalyzer es opcional; sin el, el adaptador usa atributos neutrales.
type EmotionAnalyzer interface {
	AnalyzeEmotion(ctx context.Context, text, questionID string) (domain.Attributes, error)
}

type composite struct {
	base     Capability
	analyzer EmotionAnalyzer
}

// WithAnalyzer combina una capacidad de grabacion con un analizador distinto (ej: LLM).
func WithAnalyzer(base Capability, analyzer EmotionAnalyzer) Capability {
	return &composite{base: base, analyzer: analyzer}
}

func (c *composite) IsAvailable(ctx context.Context) bool {
	return c.base != nil && c.base.IsAvailable(ctx)
}

func (c *composite) StartRecording(ctx context.Context, params RecordingParams) error {
	rec, ok := c.base.(Recorder)
	if !ok {
		return ErrNotSupported
	}
	return rec.StartRecording(ctx, params)
}

func (c *composite) StopRecording(ctx context.Context, recordingID string) (string, error) {
	rec, ok := c.base.(Recorder)
	if !ok {
		return "", ErrNotSupported
	}
	return rec.StopRecording(ctx, recordingID)
}

func (c *composite) AnalyzeEmotion(ctx context.Context, text, questionID string) (domain.Attributes, error) {
	if c.analyzer != nil {
		return c.analyzer.AnalyzeEmotion(ctx, text, questionID)
	}
	if an, ok := c.base.(EmotionAnalyzer); ok {
		return an.AnalyzeEmotion(ctx, text, questionID)
	}
	return domain.Attributes{}, ErrNotSupported
}
