package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"papergrade/internal/adapter"
	"papergrade/internal/adapter/embedding"
	"papergrade/internal/adapter/kbindex"
	"papergrade/internal/adapter/scoring"
	"papergrade/internal/cache"
	"papergrade/internal/config"
	"papergrade/internal/domain"
	"papergrade/internal/dto"
	"papergrade/internal/logger"
	"papergrade/internal/service"

	"go.uber.org/zap"
)

func main() {
	paperPath := flag.String("paper", "", "path to the question paper transcript")
	answersPath := flag.String("answers", "", "path to the answer sheet transcript")
	subject := flag.String("subject", "", "subject tag used to filter the knowledge base")
	kbPath := flag.String("kb", "", "path to a knowledge base snapshot (optional)")
	outPath := flag.String("out", "", "write the report JSON here instead of stdout")
	flag.Parse()

	if *paperPath == "" || *answersPath == "" {
		fmt.Fprintln(os.Stderr, "usage: grader -paper <file> -answers <file> [-subject s] [-kb snapshot.json] [-out report.json]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *paperPath, *answersPath, *subject, *kbPath, *outPath); err != nil {
		log.Error("Grading failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, paperPath, answersPath, subject, kbPath, outPath string) error {
	paperRaw, err := os.ReadFile(paperPath)
	if err != nil {
		return fmt.Errorf("failed to read question paper: %w", err)
	}
	answersRaw, err := os.ReadFile(answersPath)
	if err != nil {
		return fmt.Errorf("failed to read answer sheet: %w", err)
	}

	paperParser := service.NewPaperParser(log)
	questions := paperParser.Parse(string(paperRaw))
	if len(questions) == 0 {
		return fmt.Errorf("no questions recognized in %s", paperPath)
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d is invalid: %w", q.Number, err)
		}
	}

	answerParser := service.NewAnswerParser(cfg.AnswerParser, log)
	parsed := answerParser.Parse(string(answersRaw))

	mcqByNumber := make(map[int]bool, len(questions))
	for _, q := range questions {
		mcqByNumber[q.Number] = q.Type == domain.QuestionTypeMCQ
	}
	answerParser.ReinterpretMCQDigits(parsed, func(n int) bool { return mcqByNumber[n] })

	index, err := buildIndex(cfg, log, kbPath)
	if err != nil {
		return err
	}

	retriever := service.NewHybridRetriever(index, cfg.Retriever, log)
	engine := scoring.NewOllamaScoringEngine(cfg.Scoring, log)
	evaluator := service.NewEvaluationService(retriever, engine, cfg, log)

	report, err := evaluator.EvaluateSubmission(ctx, subject, questions, parsed)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(dto.NewSubmissionReportResponse(report), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	out = append(out, '\n')

	if outPath != "" {
		return os.WriteFile(outPath, out, 0o644)
	}
	_, err = os.Stdout.Write(out)
	return err
}

// buildIndex wires the knowledge base when a snapshot is supplied. Without
// one, grading proceeds on an empty index and every evaluation runs
// without reference context.
func buildIndex(cfg *config.Config, log *zap.Logger, kbPath string) (domain.KnowledgeBaseIndex, error) {
	if kbPath == "" {
		log.Info("No knowledge base snapshot supplied, grading without reference context")
		return kbindex.NewMemoryIndex(nil, nil, log), nil
	}

	passages, err := kbindex.LoadSnapshot(kbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base snapshot: %w", err)
	}

	var embeddingCache domain.Cache
	if client, redisErr := cache.NewRedisClient(cfg.Redis); redisErr != nil {
		log.Warn("Redis unavailable, embeddings will not be cached", zap.Error(redisErr))
	} else {
		embeddingCache = adapter.NewRedisCacheAdapter(client)
	}

	embedder, err := embedding.NewOpenAIEmbeddingService(cfg.OpenAIAPIKey, cfg.Embedding.Model, embeddingCache, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	log.Info("Knowledge base loaded",
		zap.String("snapshot", kbPath),
		zap.Int("passages", len(passages)))
	return kbindex.NewMemoryIndex(embedder, passages, log), nil
}
