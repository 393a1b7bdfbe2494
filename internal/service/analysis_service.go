package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"voice-match/internal/domain"
	"voice-match/internal/llm"
	"voice-match/internal/voice"
)

var ErrAnalysisNotConfigured = errors.New("analysis service not configured")

// AnalysisService usa el LLM para extraer tono, sentimiento y keywords de una respuesta transcripta.
// Implementa voice.EmotionAnalyzer para poder combinarse con cualquier capacidad de grabacion.
type AnalysisService struct {
	llmClient llm.LLMClient
	questions map[string]domain.Question
	logger    *zap.Logger
}

func NewAnalysisService(llmClient llm.LLMClient, questions []domain.Question, logger *zap.Logger) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID()] = q
	}
	return &AnalysisService{
		llmClient: llmClient,
		questions: byID,
		logger:    logger,
	}
}

// AnalyzeEmotion devuelve atributos normalizados; los errores del LLM se propagan y el adaptador decide el fallback.
func (s *AnalysisService) AnalyzeEmotion(ctx context.Context, text, questionID string) (domain.Attributes, error) {
	if s == nil || s.llmClient == nil {
		return domain.Attributes{}, ErrAnalysisNotConfigured
	}

	rawResp, err := s.llmClient.Generate(ctx, s.buildPrompt(text, questionID))
	if err != nil {
		return domain.Attributes{}, fmt.Errorf("llm generate: %w", err)
	}

	parsed, err := parseAnalysisResponse(rawResp)
	if err != nil {
		s.logger.Warn("analysis parse failed", zap.String("question_id", questionID), zap.Error(err))
		return domain.Attributes{}, err
	}

	attrs := domain.Attributes{
		Tone:       parsed.Tone,
		Confidence: domain.DefaultConfidence,
		Sentiment:  parsed.Sentiment,
		Keywords:   parsed.Keywords,
	}
	if parsed.Confidence != nil {
		attrs.Confidence = *parsed.Confidence
	}
	return voice.NormalizeAttributes(attrs), nil
}

func (s *AnalysisService) buildPrompt(text, questionID string) string {
	var b strings.Builder
	b.WriteString(`You are analysing a spoken answer from a roommate-matching intake interview.
Return ONLY a JSON object with this shape:
{"tone": "calm", "confidence": 0.8, "sentiment": "positive", "keywords": ["early", "tidy"]}

Rules:
- tone: one lowercase word describing the emotional tone (calm, warm, anxious, excited, tired, neutral...)
- confidence: number between 0 and 1
- sentiment: positive, neutral or negative
- keywords: up to 8 lowercase lifestyle words taken from the answer (schedule, cleanliness, pets, cooking, noise, guests)`)
	if q, ok := s.questions[questionID]; ok {
		b.WriteString("\n\nQuestion (")
		b.WriteString(q.Category)
		b.WriteString("): ")
		b.WriteString(q.Text)
	}
	b.WriteString("\n\nAnswer:\n")
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}

type analysisResponse struct {
	Tone       string   `json:"tone"`
	Confidence *float64 `json:"confidence,omitempty"`
	Sentiment  string   `json:"sentiment"`
	Keywords   []string `json:"keywords"`
}

func parseAnalysisResponse(raw string) (analysisResponse, error) {
	var parsed analysisResponse
	if err := decodeLLMJSON(raw, &parsed); err != nil {
		return analysisResponse{}, fmt.Errorf("parse llm response: %w", err)
	}
	return parsed, nil
}
