package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"voice-match/internal/config"
	"voice-match/internal/db"
	"voice-match/internal/domain"
	apihttp "voice-match/internal/http"
	"voice-match/internal/llm"
	"voice-match/internal/metrics"
	"voice-match/internal/repository"
	"voice-match/internal/service"
	"voice-match/internal/voice"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	collector := metrics.NewCollector("voice_match")

	var (
		intakeRepo repository.IntakeRepository
		matchRepo  repository.MatchRepository = repository.NewMemoryMatchRepository()
		candidates repository.CandidateRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		intakeRepo = repository.NewPgIntakeRepository(pool)
		matchRepo = repository.NewPgMatchRepository(pool)
		candidates = repository.NewPgCandidateRepository(pool)
	} else {
		logger.Warn("database not configured, finalized intakes are kept in memory only")
	}
	if cfg.CandidatesFile != "" {
		pool, err := repository.LoadCandidatesFile(cfg.CandidatesFile)
		if err != nil {
			logger.Fatal("load candidates file", zap.String("path", cfg.CandidatesFile), zap.Error(err))
		}
		candidates = repository.NewStaticCandidateRepository(pool)
		logger.Info("candidate pool loaded from file", zap.Int("candidates", len(pool)))
	}

	var (
		sessionStore = service.NewMemoryIntakeSessionStore(cfg.IntakeSessionTTL)
		limiter      service.SessionLimiter
		redisClient  *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			sessionStore = service.NewRedisIntakeSessionStore(redisClient, cfg.IntakeSessionTTL)
			limiter = service.NewRedisSessionLimiter(redisClient, cfg.IntakeRateWindow, cfg.IntakeRateMax)
		}
		cancel()
		defer redisClient.Close()
	}

	var capability voice.Capability = voice.NewHTTPCapability(cfg.Voice.BaseURL, cfg.Voice.APIKey, nil, logger)
	if cfg.Voice.BaseURL == "" {
		logger.Warn("voice service not configured, only typed responses will be accepted")
	}
	if cfg.Voice.Analyzer == "llm" {
		if cfg.LLMAPIKey == "" {
			logger.Warn("llm analyzer selected without LLM_API_KEY")
		}
		llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger, llm.WithJSONMode())
		capability = voice.WithAnalyzer(capability, service.NewAnalysisService(llmClient, domain.DefaultQuestions(), logger))
	}

	voiceOpts := voice.Options{
		PollInterval:     cfg.Voice.PollInterval,
		InitTimeout:      cfg.Voice.InitTimeout,
		RecordingTimeout: cfg.Voice.RecordingTimeout,
		Language:         cfg.Voice.Language,
	}
	intakeSvc := service.NewIntakeService(capability, voiceOpts, sessionStore, intakeRepo, limiter, collector, logger)
	matchSvc := service.NewMatchService(candidates, matchRepo, cfg.MatchMinScore, collector, logger)

	jwtSvc := service.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL)
	if !jwtSvc.Enabled() {
		logger.Warn("jwt secret not configured, api runs without auth")
	}

	intakeHandler := apihttp.NewIntakeHandler(logger, intakeSvc)
	matchHandler := apihttp.NewMatchHandler(logger, intakeSvc, matchSvc)
	router := apihttp.NewRouter(logger, collector, jwtSvc, intakeHandler, matchHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
		intakeSvc.Close(shutdownCtx)
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	<-done
	logger.Info("server stopped")
}
