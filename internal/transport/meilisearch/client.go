// Package meilisearch is the full-text search tier backed by a Meilisearch index.
package meilisearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/domain"
	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/result"
	"github.com/kailas-cloud/shopfinder/internal/domain/search/tier"
)

const (
	backendName = "meilisearch"
	preTag      = "<mark>"
	postTag     = "</mark>"
)

var highlightFields = []string{"name", "brand", "category"}

// Config holds the Meilisearch connection settings.
type Config struct {
	URL        string
	APIKey     string
	Index      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client queries one Meilisearch index through the official SDK.
type Client struct {
	service meili.ServiceManager
	index   meili.IndexManager
	logger  *zap.Logger
}

// New creates a Meilisearch client.
func New(cfg Config) (*Client, error) {
	host := strings.TrimRight(cfg.URL, "/")
	base, err := url.Parse(host)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: meilisearch url %q", domain.ErrInvalidRequest, cfg.URL)
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("%w: meilisearch index is required", domain.ErrInvalidRequest)
	}

	opts := []meili.Option{meili.WithAPIKey(cfg.APIKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, meili.WithCustomClient(cfg.HTTPClient))
	}
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	svc := meili.New(host, opts...)
	return &Client{
		service: svc,
		index:   svc.Index(cfg.Index),
		logger:  l,
	}, nil
}

type hit struct {
	product.Product
	RankingScore *float64     `json:"_rankingScore"`
	Formatted    formattedHit `json:"_formatted"`
}

type formattedHit struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
}

// Name identifies the full-text tier.
func (c *Client) Name() tier.Name { return tier.FullText }

// Search runs the constraints against the index.
func (c *Client) Search(ctx context.Context, cons query.Constraints, limit int) ([]result.ScoredItem, error) {
	resp, err := c.index.SearchWithContext(ctx, cons.SearchText, buildRequest(cons, limit))
	if err != nil {
		return nil, mapError(ctx, "search", err)
	}
	if resp.Hits == nil {
		return nil, fmt.Errorf("meilisearch response without hits: %w", domain.ErrMalformedResponse)
	}

	items := make([]result.ScoredItem, 0, len(resp.Hits))
	for i, raw := range resp.Hits {
		h, err := decodeHit(raw)
		if err != nil {
			return nil, fmt.Errorf("decode meilisearch hit %d: %v: %w", i, err, domain.ErrMalformedResponse)
		}
		if h.ID == "" {
			c.logger.Debug("Skipping meilisearch hit without id", zap.Int("position", i))
			continue
		}
		p := h.Product
		items = append(items, result.ScoredItem{
			ID:            p.ID,
			Score:         hitScore(h.RankingScore, i, len(resp.Hits)),
			MatchedFields: h.Formatted.matched(),
			Product:       &p,
		})
	}
	c.logger.Debug("Meilisearch answered",
		zap.Int("hits", len(items)),
		zap.Int64("estimated_total", resp.EstimatedTotalHits),
		zap.Int64("processing_ms", resp.ProcessingTimeMs),
	)
	return items, nil
}

// HealthCheck asks the server for its status.
func (c *Client) HealthCheck(ctx context.Context) error {
	h, err := c.service.HealthWithContext(ctx)
	if err != nil {
		return mapError(ctx, "health", err)
	}
	if h.Status != "available" {
		return fmt.Errorf("meilisearch status %q: %w", h.Status, domain.ErrBackendUnavailable)
	}
	return nil
}

// decodeHit re-decodes one SDK hit into the product record plus ranking fields.
func decodeHit(raw any) (hit, error) {
	var h hit
	data, err := json.Marshal(raw)
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(data, &h)
	return h, err
}

// mapError turns SDK errors into the tier error vocabulary: caller deadlines stay
// context errors, HTTP replies become status errors, undecodable 2xx bodies are
// malformed and everything else is a transport failure.
func mapError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("meilisearch %s: %w", op, ctxErr)
	}
	var me *meili.Error
	if errors.As(err, &me) {
		switch {
		case me.StatusCode >= 300:
			return domain.NewBackendStatusError(backendName, me.StatusCode, errorDetail(me))
		case me.StatusCode >= 200:
			return fmt.Errorf("meilisearch %s: %v: %w", op, err, domain.ErrMalformedResponse)
		}
	}
	return fmt.Errorf("meilisearch %s: %v: %w", op, err, domain.ErrBackendTransport)
}

func errorDetail(me *meili.Error) string {
	api := me.MeilisearchApiError
	switch {
	case api.Message != "" && api.Code != "":
		return api.Code + ": " + api.Message
	case api.Message != "":
		return api.Message
	default:
		return strings.TrimSpace(me.ResponseToString)
	}
}

func buildRequest(cons query.Constraints, limit int) *meili.SearchRequest {
	req := &meili.SearchRequest{
		Limit:                 int64(limit),
		AttributesToHighlight: highlightFields,
		HighlightPreTag:       preTag,
		HighlightPostTag:      postTag,
		ShowRankingScore:      true,
	}
	if f := Filter(cons); f != "" {
		req.Filter = f
	}
	switch {
	case cons.HasFeature("cheap"):
		req.Sort = []string{"price.current:asc"}
	case cons.MinDiscount != nil && cons.SearchText == "":
		req.Sort = []string{"price.discount_percentage:desc"}
	}
	return req
}

// Filter renders budget, brand and discount constraints as a Meilisearch filter expression.
func Filter(cons query.Constraints) string {
	parts := make([]string, 0, 4)
	if cons.BudgetMin != nil {
		parts = append(parts, fmt.Sprintf("price.current >= %d", *cons.BudgetMin))
	}
	if cons.BudgetMax != nil {
		parts = append(parts, fmt.Sprintf("price.current <= %d", *cons.BudgetMax))
	}
	if len(cons.Brands) > 0 {
		quoted := make([]string, len(cons.Brands))
		for i, b := range cons.Brands {
			quoted[i] = quote(b)
		}
		parts = append(parts, "brand IN ["+strings.Join(quoted, ", ")+"]")
	}
	if cons.MinDiscount != nil {
		parts = append(parts, fmt.Sprintf("price.discount_percentage >= %d", *cons.MinDiscount))
	}
	return strings.Join(parts, " AND ")
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// hitScore prefers the engine's ranking score and falls back to rank position.
func hitScore(ranking *float64, pos, total int) float64 {
	if ranking != nil {
		return *ranking
	}
	if total <= 0 {
		return 0
	}
	return 1 - float64(pos)/float64(total)
}

func (f formattedHit) matched() map[string][]string {
	out := make(map[string][]string)
	for field, text := range map[string]string{"name": f.Name, "brand": f.Brand, "category": f.Category} {
		if marks := Highlights(text); len(marks) > 0 {
			out[field] = marks
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Highlights returns the fragments wrapped in highlight tags, in order.
func Highlights(s string) []string {
	var out []string
	for {
		start := strings.Index(s, preTag)
		if start < 0 {
			return out
		}
		s = s[start+len(preTag):]
		end := strings.Index(s, postTag)
		if end < 0 {
			return out
		}
		if frag := strings.TrimSpace(s[:end]); frag != "" {
			out = append(out, frag)
		}
		s = s[end+len(postTag):]
	}
}
