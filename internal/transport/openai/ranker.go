// Package openai is the semantic search tier: an OpenAI-compatible chat model ranks
// catalog candidates against the shopper's request.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/domain"
	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
	"github.com/kailas-cloud/shopfinder/internal/metrics"
)

const (
	defaultMaxCandidates = 40
	defaultScore         = 0.5
	criteriaField        = "criteria"
)

// candidateSource supplies pre-filtered catalog products for the prompt.
type candidateSource interface {
	Candidates(cons query.Constraints, limit int) []product.Product
}

// budget gates and records token spend.
type budget interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// Config holds the semantic ranker settings.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float32
	MaxCandidates int
	User          string
	Provider      string
	Logger        *zap.Logger
}

// Ranker ranks catalog candidates with a chat completion model.
type Ranker struct {
	client        *openai.Client
	model         string
	temperature   float32
	maxCandidates int
	user          string
	provider      string
	catalog       candidateSource
	budget        budget
	logger        *zap.Logger
}

// NewRanker creates a semantic ranker over the given candidate source.
func NewRanker(cfg *Config, catalog candidateSource) *Ranker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	maxCand := cfg.MaxCandidates
	if maxCand <= 0 {
		maxCand = defaultMaxCandidates
	}
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Ranker{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxCandidates: maxCand,
		user:          cfg.User,
		provider:      cfg.Provider,
		catalog:       catalog,
		logger:        l,
	}
}

// WithBudget attaches a token budget. A refused budget check fails the tier with a quota error.
func (r *Ranker) WithBudget(b budget) *Ranker {
	r.budget = b
	return r
}

// Name identifies the semantic tier.
func (r *Ranker) Name() tier.Name { return tier.Semantic }

// Search asks the model to rank the catalog candidates matching cons.
func (r *Ranker) Search(ctx context.Context, cons query.Constraints, limit int) ([]result.ScoredItem, error) {
	if r.budget != nil {
		if err := r.budget.Check(ctx); err != nil {
			return nil, err
		}
	}

	cands := r.catalog.Candidates(cons, r.maxCandidates)
	if len(cands) == 0 {
		return []result.ScoredItem{}, nil
	}

	prompt, err := buildPrompt(cons, cands, limit)
	if err != nil {
		return nil, err
	}
	req := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    r.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		User:           r.user,
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("chat completion: %w", ctxErr)
		}
		return nil, parseAPIError(err)
	}
	r.recordUsage(resp.Usage)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion without choices: %w", domain.ErrMalformedResponse)
	}
	picks, err := ParseRanking(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	items := hydrate(picks, cands)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	r.logger.Debug("Semantic ranking done",
		zap.String("provider", r.provider),
		zap.Int("candidates", len(cands)),
		zap.Int("ranked", len(items)),
		zap.Duration("latency", time.Since(start)),
	)
	return items, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (r *Ranker) HealthCheck(ctx context.Context) error {
	if _, err := r.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", parseAPIError(err))
	}
	return nil
}

func (r *Ranker) recordUsage(u openai.Usage) {
	if u.TotalTokens <= 0 {
		return
	}
	metrics.SemanticTokensTotal.WithLabelValues(r.model, "prompt").Add(float64(u.PromptTokens))
	metrics.SemanticTokensTotal.WithLabelValues(r.model, "completion").Add(float64(u.CompletionTokens))
	metrics.SemanticTokensTotal.WithLabelValues(r.model, "total").Add(float64(u.TotalTokens))
	if r.budget != nil {
		r.budget.Record(int64(u.TotalTokens))
	}
}

// Pick is one ranked entry returned by the model.
type Pick struct {
	ID              string   `json:"id"`
	RelevanceScore  *float64 `json:"relevance_score"`
	Reasoning       string   `json:"reasoning"`
	MatchedCriteria []string `json:"matched_criteria"`
}

// ParseRanking decodes the model output. It accepts {"results":[...]}, a bare array,
// or a single object, optionally wrapped in a markdown code fence.
func ParseRanking(content string) ([]Pick, error) {
	text := StripFences(content)
	if text == "" {
		return nil, fmt.Errorf("empty model output: %w", domain.ErrMalformedResponse)
	}

	var picks []Pick
	switch text[0] {
	case '[':
		if err := json.Unmarshal([]byte(text), &picks); err != nil {
			return nil, fmt.Errorf("decode ranking: %v: %w", err, domain.ErrMalformedResponse)
		}
	case '{':
		var wrapped struct {
			Results *[]Pick `json:"results"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil, fmt.Errorf("decode ranking: %v: %w", err, domain.ErrMalformedResponse)
		}
		if wrapped.Results != nil {
			picks = *wrapped.Results
			break
		}
		var single Pick
		if err := json.Unmarshal([]byte(text), &single); err != nil || single.ID == "" {
			return nil, fmt.Errorf("ranking object without results: %w", domain.ErrMalformedResponse)
		}
		picks = []Pick{single}
	default:
		return nil, fmt.Errorf("ranking is not JSON: %w", domain.ErrMalformedResponse)
	}
	return picks, nil
}

// StripFences removes a surrounding ``` or ```json fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[{") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// hydrate keeps picks that name a candidate, first occurrence wins, and sorts them by score.
func hydrate(picks []Pick, cands []product.Product) []result.ScoredItem {
	byID := make(map[string]int, len(cands))
	for i := range cands {
		byID[cands[i].ID] = i
	}

	items := make([]result.ScoredItem, 0, len(picks))
	seen := make(map[string]struct{}, len(picks))
	for _, pk := range picks {
		i, ok := byID[pk.ID]
		if !ok {
			continue
		}
		if _, dup := seen[pk.ID]; dup {
			continue
		}
		seen[pk.ID] = struct{}{}

		score := defaultScore
		if pk.RelevanceScore != nil {
			score = clamp(*pk.RelevanceScore)
		}
		p := cands[i]
		it := result.ScoredItem{
			ID:        p.ID,
			Score:     score,
			Reasoning: pk.Reasoning,
			Product:   &p,
		}
		if len(pk.MatchedCriteria) > 0 {
			it.MatchedFields = map[string][]string{criteriaField: pk.MatchedCriteria}
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(a, b int) bool { return items[a].Score > items[b].Score })
	return items
}

func clamp(s float64) float64 {
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
