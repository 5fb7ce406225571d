package scoring

import (
	"context"
	"net/http"
	"time"

	"papergrade/internal/config"
	"papergrade/internal/domain"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

// OllamaScoringEngine implements domain.ScoringEngine against a local
// Ollama server. The reply is raw completion text; JSON validation is the
// orchestrator's responsibility.
type OllamaScoringEngine struct {
	serverURL   string
	model       string
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// NewOllamaScoringEngine creates a new scoring engine adapter.
func NewOllamaScoringEngine(cfg config.ScoringConfig, logger *zap.Logger) *OllamaScoringEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaScoringEngine{
		serverURL:   cfg.ServerURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		logger:      logger,
	}
}

// Score implements domain.ScoringEngine.
func (e *OllamaScoringEngine) Score(ctx context.Context, prompt string) (string, error) {
	httpClient := &http.Client{
		Timeout: e.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     10 * time.Second,
		},
	}

	llm, err := ollama.New(
		ollama.WithServerURL(e.serverURL),
		ollama.WithModel(e.model),
		ollama.WithHTTPClient(httpClient),
	)
	if err != nil {
		e.logger.Error("Failed to create scoring engine client", zap.Error(err))
		return "", domain.NewScoringEngineError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	response, err := llm.Call(callCtx, prompt, llms.WithTemperature(e.temperature))
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			e.logger.Error("Scoring engine request timed out",
				zap.Duration("timeout", e.timeout))
		} else {
			e.logger.Error("Scoring engine request failed", zap.Error(err))
		}
		return "", domain.NewScoringEngineError(err)
	}

	return response, nil
}
