// Package counselor drafts and edits college application essays with a
// chat-completion model.
package counselor

import (
	"context"
	"log/slog"
	"time"

	"collegeplan/internal/config"
	"collegeplan/internal/external"
)

// tokensPerWord is the completion budget per requested word.
const tokensPerWord = 6

// Counselor turns essay requests into model completions.
type Counselor struct {
	llm         external.ChatCompleter
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// New creates a Counselor using the model settings in cfg.
func New(llm external.ChatCompleter, cfg config.LLMConfig, logger *slog.Logger) *Counselor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counselor{
		llm:         llm,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

// TokenBudget caps the completion length for an essay of wordCount words.
func TokenBudget(wordCount, limit int) int {
	return min(limit, wordCount*tokensPerWord)
}

// Generate writes or edits an essay and returns the model's text.
func (c *Counselor) Generate(ctx context.Context, userID string, req EssayRequest) (string, error) {
	start := time.Now()
	budget := TokenBudget(req.WordCount, c.maxTokens)

	essay, err := c.llm.Complete(ctx, external.ChatRequest{
		Model:       c.model,
		Messages:    BuildMessages(req),
		Temperature: c.temperature,
		MaxTokens:   budget,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "essay generation failed",
			"user_id", userID,
			"mode", req.Mode(),
			"error", err,
		)
		return "", err
	}

	c.logger.InfoContext(ctx, "essay generated",
		"user_id", userID,
		"mode", req.Mode(),
		"word_count", req.WordCount,
		"max_tokens", budget,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return essay, nil
}
