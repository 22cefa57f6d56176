package tagger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/activity-cli/internal/resilience"
	"github.com/sells-group/activity-cli/internal/taxonomy"
	"github.com/sells-group/activity-cli/pkg/anthropic"
)

// ErrInvalidReply is returned when the tagging service reply does not
// match the expected schema.
var ErrInvalidReply = eris.New("tagger: invalid service reply")

// Suggestion is one tag proposed by the external service.
type Suggestion struct {
	Tag        string  `json:"tag" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Rationale  string  `json:"rationale"`
}

type reply struct {
	Tags []Suggestion `json:"tags" validate:"required,dive"`
}

// Service proposes tags for an activity.
type Service interface {
	Suggest(ctx context.Context, in Input) ([]Suggestion, error)
}

// ServiceConfig configures AnthropicService.
type ServiceConfig struct {
	Model     string
	MaxTokens int64
	// Timeout bounds each attempt.
	Timeout time.Duration
	Retry   resilience.Policy
	// RatePerSec limits request starts; zero disables pacing.
	RatePerSec float64
	Breaker    resilience.BreakerConfig
}

// DefaultServiceConfig returns the default service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Model:      "claude-haiku-4-5-20251001",
		MaxTokens:  512,
		Timeout:    15 * time.Second,
		Retry:      resilience.DefaultPolicy(),
		RatePerSec: 2,
		Breaker:    resilience.BreakerConfig{Threshold: 5, Cooldown: time.Minute},
	}
}

// AnthropicService asks Claude for tags constrained to the taxonomy.
type AnthropicService struct {
	client  anthropic.Client
	tax     *taxonomy.Store
	cfg     ServiceConfig
	limiter *rate.Limiter
	breaker *resilience.Breaker
	system  []anthropic.SystemBlock
	valid   *validator.Validate
}

// NewAnthropicService creates an AnthropicService.
func NewAnthropicService(client anthropic.Client, tax *taxonomy.Store, cfg ServiceConfig) *AnthropicService {
	def := DefaultServiceConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.LogRetry("tagger.suggest")
	}

	s := &AnthropicService{
		client:  client,
		tax:     tax,
		cfg:     cfg,
		breaker: resilience.NewBreaker("anthropic", cfg.Breaker),
		system:  anthropic.CachedSystem(systemPrompt(tax), replyInstructions),
		valid:   validator.New(),
	}
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return s
}

// Suggest calls the service with one retry and a bounded timeout per
// attempt. Every failure is returned as an error for the caller to
// degrade on.
func (s *AnthropicService) Suggest(ctx context.Context, in Input) ([]Suggestion, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "tagger: rate limit wait")
		}
	}
	return resilience.Call(ctx, s.breaker, func(ctx context.Context) ([]Suggestion, error) {
		return resilience.RetryVal(ctx, s.cfg.Retry, func(ctx context.Context) ([]Suggestion, error) {
			return s.attempt(ctx, in)
		})
	})
}

func (s *AnthropicService) attempt(ctx context.Context, in Input) ([]Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	temp := 0.0
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		System:      s.system,
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt(in)}},
		Temperature: &temp,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.IsTransientStatus(code) {
			return nil, resilience.NewTransientError(err, code)
		}
		return nil, eris.Wrap(err, "tagger: suggest")
	}
	resp.Usage.LogCost(s.cfg.Model, "tag")

	return parseReply(s.valid, resp.Text())
}

// parseReply decodes and validates a service reply. Unknown fields,
// trailing data, out-of-range confidences and empty tag names are all
// rejected.
func parseReply(v *validator.Validate, text string) ([]Suggestion, error) {
	dec := json.NewDecoder(strings.NewReader(cleanJSON(text)))
	dec.DisallowUnknownFields()

	var r reply
	if err := dec.Decode(&r); err != nil {
		return nil, eris.Wrapf(ErrInvalidReply, "decode: %v", err)
	}
	if dec.More() {
		return nil, eris.Wrap(ErrInvalidReply, "trailing data after reply")
	}
	if err := v.Struct(r); err != nil {
		return nil, eris.Wrapf(ErrInvalidReply, "validate: %v", err)
	}
	return r.Tags, nil
}

// cleanJSON strips markdown fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

const replyInstructions = `Reply with a single JSON object and nothing else:
{"tags":[{"tag":"<name>","confidence":<0..1>,"rationale":"<short reason>"}]}
Use only tag names from the vocabulary. Return {"tags":[]} when nothing fits.`

func systemPrompt(tax *taxonomy.Store) string {
	var b bytes.Buffer
	b.WriteString("You tag personal activity records with a controlled vocabulary.\n")
	b.WriteString("Vocabulary (tag, parent, keywords and synonyms):\n")
	b.WriteString(tax.Snapshot())
	fmt.Fprintf(&b, "Assign at most %d tags.\n", tax.Calibration().MaxTags)
	return b.String()
}

func userPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Activity (%d minutes, sources: %s):\n", in.DurationMinutes, strings.Join(in.Sources, ", "))
	b.WriteString(in.Text)
	if len(in.Context) > 0 {
		keys := make([]string, 0, len(in.Context))
		for k := range in.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nContext:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, in.Context[k])
		}
	}
	return b.String()
}
