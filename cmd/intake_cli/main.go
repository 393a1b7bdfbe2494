package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"voice-match/internal/config"
	"voice-match/internal/domain"
	"voice-match/internal/llm"
	"voice-match/internal/repository"
	"voice-match/internal/service"
	"voice-match/internal/voice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample(zap.IncreaseLevel(zap.WarnLevel))
	defer logger.Sync()

	input := newLineReader(os.Stdin)
	var capability voice.Capability = &consoleCapability{input: input, out: os.Stdout}
	if cfg.LLMAPIKey != "" {
		llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger, llm.WithJSONMode())
		capability = voice.WithAnalyzer(capability, service.NewAnalysisService(llmClient, domain.DefaultQuestions(), logger))
	} else {
		fmt.Println("LLM_API_KEY no configurada: las respuestas se guardan con atributos neutrales.")
	}

	voiceOpts := voice.DefaultOptions()
	voiceOpts.RecordingTimeout = cfg.Voice.RecordingTimeout
	voiceOpts.Language = cfg.Voice.Language

	intakeSvc := service.NewIntakeService(capability, voiceOpts, service.NewMemoryIntakeSessionStore(cfg.IntakeSessionTTL), nil, nil, nil, logger)
	defer intakeSvc.Close(context.Background())

	fmt.Print("Nombre o ID del sujeto: ")
	subjectID, err := input.ReadLine(ctx)
	if err != nil {
		log.Fatal(err)
	}
	session, err := intakeSvc.BeginSession(ctx, subjectID)
	if err != nil {
		log.Fatalf("iniciar sesion: %v", err)
	}

	if err := walkQuestionnaire(ctx, input, intakeSvc, session.ID); err != nil {
		log.Fatalf("cuestionario: %v", err)
	}

	profile, err := intakeSvc.Finalize(ctx, session.ID)
	if err != nil {
		log.Fatalf("finalizar: %v", err)
	}
	printProfile(profile)

	if cfg.CandidatesFile == "" {
		fmt.Println("CANDIDATES_FILE no configurado: no hay pool para rankear.")
		return
	}
	pool, err := repository.LoadCandidatesFile(cfg.CandidatesFile)
	if err != nil {
		log.Fatalf("cargar candidatos: %v", err)
	}
	matchSvc := service.NewMatchService(repository.NewStaticCandidateRepository(pool), nil, cfg.MatchMinScore, nil, logger)
	set, err := matchSvc.Rank(ctx, service.RankRequest{Profile: profile})
	if err != nil {
		log.Fatalf("rankear: %v", err)
	}
	printMatches(set)
}

func walkQuestionnaire(ctx context.Context, input *lineReader, intakeSvc *service.IntakeService, sessionID string) error {
	total := len(intakeSvc.Questions())
	for {
		q, err := intakeSvc.CurrentQuestion(ctx, sessionID)
		if errors.Is(err, domain.ErrSessionComplete) {
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("\n[%d/%d] %s\n", q.Ordinal, total, q.Text)
		resp, err := intakeSvc.CaptureResponse(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil || input.Closed() {
				return err
			}
			fmt.Printf("No se pudo capturar la respuesta: %v\n", err)
			continue
		}
		if resp.Transcript == "" {
			fmt.Println("(respuesta vacia)")
		}

		if err := navigate(ctx, input, intakeSvc, sessionID); err != nil {
			return err
		}
	}
}

// navigate pide la accion siguiente hasta que una tenga exito.
func navigate(ctx context.Context, input *lineReader, intakeSvc *service.IntakeService, sessionID string) error {
	for {
		fmt.Print("[Enter] siguiente  [A] atras  [R] repetir: ")
		line, err := input.ReadLine(ctx)
		if err != nil {
			return err
		}
		switch strings.ToUpper(line) {
		case "":
			_, err = intakeSvc.Advance(ctx, sessionID)
		case "A":
			_, err = intakeSvc.Retreat(ctx, sessionID)
			if errors.Is(err, domain.ErrAtStart) {
				fmt.Println("Ya estas en la primera pregunta.")
				continue
			}
		case "R":
			return nil
		default:
			fmt.Println("Opcion invalida.")
			continue
		}
		if err != nil {
			return err
		}
		return nil
	}
}

func printProfile(p domain.SubjectProfile) {
	fmt.Println("\n===== Perfil =====")
	fmt.Printf("Sentimiento: %.2f\n", p.SentimentScore)
	for _, t := range p.Traits {
		fmt.Printf("  rasgo %-12s peso %.2f (%d)\n", t.Label, t.Weight, t.Count)
	}
	for _, t := range p.LifestyleTags {
		fmt.Printf("  tag   %-12s x%d\n", t.Label, t.Count)
	}
}

func printMatches(set domain.MatchSet) {
	fmt.Printf("\n===== Matches (%s) =====\n", set.ReferenceDate.Format("2006-01-02"))
	if len(set.Results) == 0 {
		fmt.Println("Sin resultados.")
		return
	}
	for i, r := range set.Results {
		fmt.Printf("%2d. %-10s %3d  %s\n", i+1, r.CandidateID, r.Score, strings.Join(r.Matched, ", "))
	}
}
