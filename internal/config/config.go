package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"1"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret    string        `env:"JWT_SECRET"`
	JWTIssuer    string        `env:"JWT_ISSUER" envDefault:"voice-match"`
	JWTAccessTTL time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`

	LLMAPIKey  string `env:"LLM_API_KEY"`
	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	Voice VoiceConfig

	IntakeSessionTTL time.Duration `env:"INTAKE_SESSION_TTL" envDefault:"24h"`
	IntakeRateWindow time.Duration `env:"INTAKE_RATE_WINDOW" envDefault:"10m"`
	IntakeRateMax    int           `env:"INTAKE_RATE_MAX" envDefault:"5"`

	MatchMinScore int `env:"MATCH_MIN_SCORE" envDefault:"0"`
	// CandidatesFile es el pool en JSON cuando no hay base de datos.
	CandidatesFile string `env:"CANDIDATES_FILE"`
}

// VoiceConfig agrupa los parametros del adaptador de voz.
type VoiceConfig struct {
	BaseURL          string        `env:"VOICE_BASE_URL"`
	APIKey           string        `env:"VOICE_API_KEY"`
	Language         string        `env:"VOICE_LANGUAGE" envDefault:"en-IN"`
	PollInterval     time.Duration `env:"VOICE_POLL_INTERVAL" envDefault:"100ms"`
	InitTimeout      time.Duration `env:"VOICE_INIT_TIMEOUT" envDefault:"10s"`
	RecordingTimeout time.Duration `env:"VOICE_RECORDING_TIMEOUT" envDefault:"30s"`
	// Analyzer elige quien deriva atributos: "service" (el propio servicio de voz) o "llm".
	Analyzer string `env:"VOICE_ANALYZER" envDefault:"service"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
