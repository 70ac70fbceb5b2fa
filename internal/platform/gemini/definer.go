// Package gemini implements the generation.Generator boundary using Google's
// Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/wordnest/wordnest/internal/config"
	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/generation"
)

const (
	defaultModel      = "gemini-2.0-flash"
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

const promptFormat = `You write vocabulary entries for children.
Define the word %q for a grade %d student in one short sentence, then give one
example sentence using the word. Respond with JSON only, in this exact shape:
{"definition": "...", "example": "..."}`

// Definer generates word definitions through the Gemini API.
type Definer struct {
	logger     *slog.Logger
	client     *genai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
}

var _ generation.Generator = (*Definer)(nil)

// NewDefiner creates a Gemini-backed definition generator.
func NewDefiner(ctx context.Context, cfg config.Gemini, log *slog.Logger) (*Definer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &Definer{
		logger:     log.With(slog.String("component", "gemini_definer")),
		client:     client,
		model:      model,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}, nil
}

// responseSchema is the JSON shape the prompt asks the model for.
type responseSchema struct {
	Definition string `json:"definition"`
	Example    string `json:"example"`
}

// Define implements generation.Generator.
func (d *Definer) Define(ctx context.Context, word string, grade int) (*generation.Definition, error) {
	word = domain.NormalizeWord(word)
	if word == "" {
		return nil, fmt.Errorf("%w: word cannot be empty", generation.ErrInvalidConfig)
	}
	prompt := fmt.Sprintf(promptFormat, word, grade)

	parsed, err := d.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if parsed.Definition == "" {
		return nil, fmt.Errorf("%w: empty definition", generation.ErrInvalidResponse)
	}

	d.logger.Debug("definition generated",
		slog.String("word", word),
		slog.Int("grade", grade))
	return &generation.Definition{
		Word:       word,
		Definition: parsed.Definition,
		Example:    parsed.Example,
	}, nil
}

// callWithRetry calls the API with exponential backoff and jitter. Permanent
// failures (safety blocks, unparseable responses) return immediately; only
// transport-level errors are retried.
func (d *Definer) callWithRetry(ctx context.Context, prompt string) (*responseSchema, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		parsed, err, transient := d.callOnce(ctx, prompt)
		if err == nil {
			return parsed, nil
		}
		d.logger.Warn("gemini call failed",
			slog.Int("attempt", attempt+1),
			slog.Bool("transient", transient),
			slog.String("error", err.Error()))

		if !transient || attempt >= d.maxRetries {
			if transient {
				return nil, fmt.Errorf("%w: exceeded %d attempts: %v",
					generation.ErrTransientFailure, d.maxRetries+1, err)
			}
			return nil, err
		}

		// delay = base * 2^attempt * jitter in [0.5, 1.0)
		backoff := float64(d.retryDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

func (d *Definer) callOnce(ctx context.Context, prompt string) (*responseSchema, error, bool) {
	resp, err := d.client.Models.GenerateContent(ctx, d.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini API call: %w", err), true
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse), false
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: word rejected", generation.ErrContentBlocked), false
	}

	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}
	var parsed responseSchema
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err), false
	}
	return &parsed, nil, false
}

// extractJSON strips markdown code fences the model sometimes wraps around
// its JSON despite the prompt.
func extractJSON(text string) string {
	start := -1
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}
