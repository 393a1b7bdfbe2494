package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"voice-match/internal/domain"
)

// errClientStatus marca respuestas 4xx: son errores del pedido, no del servicio, y no abren el breaker.
var errClientStatus = errors.New("voice service rejected request")

// HTTPCapability implementa Capability, Recorder y EmotionAnalyzer contra el servicio de voz hosteado.
type HTTPCapability struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewHTTPCapability construye el cliente; grabacion y analisis pasan por un circuit breaker.
func NewHTTPCapability(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *HTTPCapability {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &HTTPCapability{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpClient,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "voice-capability",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errClientStatus)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// IsAvailable consulta /health sin pasar por el breaker: el adaptador hace polling durante
// la inicializacion y tiene que ver al servicio en cuanto vuelve.
func (c *HTTPCapability) IsAvailable(ctx context.Context) bool {
	if c.baseURL == "" {
		return false
	}
	_, err := c.send(ctx, http.MethodGet, "/health", nil)
	return err == nil
}

func (c *HTTPCapability) StartRecording(ctx context.Context, params RecordingParams) error {
	_, err := c.do(ctx, http.MethodPost, "/recordings", params)
	return err
}

func (c *HTTPCapability) StopRecording(ctx context.Context, recordingID string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/recordings/"+url.PathEscape(recordingID)+"/stop", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Transcription string `json:"transcription"`
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal stop response: %w", err)
	}
	return out.Transcription, nil
}

func (c *HTTPCapability) AnalyzeEmotion(ctx context.Context, text, questionID string) (domain.Attributes, error) {
	reqBody := struct {
		Text       string `json:"text"`
		QuestionID string `json:"questionId"`
	}{Text: text, QuestionID: questionID}

	body, err := c.do(ctx, http.MethodPost, "/analyze", reqBody)
	if err != nil {
		return domain.Attributes{}, err
	}

	var out struct {
		Tone       string   `json:"tone"`
		Confidence *float64 `json:"confidence"`
		Keywords   []string `json:"keywords"`
		Sentiment  string   `json:"sentiment"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Attributes{}, fmt.Errorf("unmarshal analysis: %w", err)
	}

	attrs := domain.Attributes{
		Tone:       out.Tone,
		Confidence: domain.DefaultConfidence,
		Sentiment:  out.Sentiment,
		Keywords:   out.Keywords,
	}
	if out.Confidence != nil {
		attrs.Confidence = *out.Confidence
	}
	return attrs, nil
}

// do envuelve send con el breaker; lo usan las operaciones de grabacion y analisis.
func (c *HTTPCapability) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, method, path, payload)
	})
	if err != nil {
		return nil, err
	}
	body, _ := res.([]byte)
	return body, nil
}

func (c *HTTPCapability) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		c.logger.Debug("voice service error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("voice http error: status=%d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status=%d", errClientStatus, resp.StatusCode)
	}
	return body, nil
}
