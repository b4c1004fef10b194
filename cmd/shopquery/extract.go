package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/usecase/extract"
)

type extractOutput struct {
	RulesVersion string            `json:"rules_version"`
	Constraints  query.Constraints `json:"constraints"`
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <query>",
		Short: "Print the constraints extracted from a query",
		Long: `Print the constraints extracted from a query.

Examples:
  shopquery extract "điện thoại samsung dưới 10 triệu"
  shopquery extract "iphone tầm 20tr chụp ảnh đẹp"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex := extract.Default()
			return printJSON(cmd.OutOrStdout(), extractOutput{
				RulesVersion: ex.Version(),
				Constraints:  ex.Extract(strings.Join(args, " ")),
			})
		},
	}
}
