package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopfinder/internal/repository/catalog"
	"github.com/kailas-cloud/shopfinder/internal/transport/meilisearch"
	"github.com/kailas-cloud/shopfinder/internal/usecase/extract"
	"github.com/kailas-cloud/shopfinder/internal/usecase/format"
	"github.com/kailas-cloud/shopfinder/internal/usecase/orchestrator"
)

type searchOptions struct {
	catalogPath string
	meiliURL    string
	meiliKey    string
	meiliIndex  string
	limit       int
	minScore    float64
	timeout     time.Duration
	verbose     bool
}

func newSearchCmd() *cobra.Command {
	opts := searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a query through the tier chain and print the payload",
		Long: `Run a query through the tier chain and print the payload.

The local catalog is always the last tier. With --meili-url the
full-text tier is tried first.

Examples:
  shopquery search "samsung dưới 10 triệu"
  shopquery search --meili-url http://localhost:7700 "laptop gaming"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.catalogPath, "catalog", "c", defaultCatalogPath, "Path to the product snapshot")
	f.StringVar(&opts.meiliURL, "meili-url", "", "Meilisearch base URL (enables the full-text tier)")
	f.StringVar(&opts.meiliKey, "meili-key", "", "Meilisearch API key")
	f.StringVar(&opts.meiliIndex, "meili-index", "products", "Meilisearch index uid")
	f.IntVarP(&opts.limit, "limit", "l", 10, "Maximum number of products")
	f.Float64Var(&opts.minScore, "min-score", 0, "Drop results scoring below this value")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Timeout for the full-text tier")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log tier attempts to stderr")
	return cmd
}

func runSearch(cmd *cobra.Command, opts searchOptions, text string) error {
	if opts.limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", opts.limit)
	}

	l := zap.NewNop()
	if opts.verbose {
		var err error
		if l, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() { _ = l.Sync() }()
	}

	products, err := catalog.Open(opts.catalogPath, l)
	if err != nil {
		return err
	}

	var stages []orchestrator.Stage
	if opts.meiliURL != "" {
		meili, err := meilisearch.New(meilisearch.Config{
			URL:    opts.meiliURL,
			APIKey: opts.meiliKey,
			Index:  opts.meiliIndex,
			Logger: l,
		})
		if err != nil {
			return err
		}
		stages = append(stages, orchestrator.Stage{Tier: meili, Timeout: opts.timeout})
	}
	stages = append(stages, orchestrator.Stage{Tier: products})

	orch, err := orchestrator.New(stages, l)
	if err != nil {
		return err
	}

	cons := extract.Default().Extract(text)
	out, err := orch.Search(cmd.Context(), cons, opts.limit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), format.New(opts.minScore).Format(out, cons, opts.limit))
}
