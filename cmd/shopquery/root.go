package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

const defaultCatalogPath = "data/products.json"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shopquery",
		Short:         "Inspect how shopfinder understands and answers a query",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newExtractCmd(), newSearchCmd())
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
