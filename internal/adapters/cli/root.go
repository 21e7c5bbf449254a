// Package cli implements the searchctl commands over the search service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

// Runtime is what a command runs against. Close is called once the command
// finishes.
type Runtime struct {
	Service ports.SearchService
	Loader  ports.CorpusLoader
	Close   func()
}

// RuntimeFactory builds the runtime lazily so --help and flag errors never
// touch a backend.
type RuntimeFactory func(ctx context.Context) (*Runtime, error)

type options struct {
	jsonOutput bool
}

// NewRootCommand assembles searchctl.
func NewRootCommand(factory RuntimeFactory) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "searchctl",
		Short: "Query California legal codes from the command line",
		Long: `searchctl runs the same classification, retrieval and answer pipeline as
the HTTP API against the configured backends.

Example usage:
  searchctl classify "PEN 187"
  searchctl search --mode hybrid "child custody modification"
  searchctl answer "what are the grounds for divorce"
  searchctl health
  searchctl load sections.jsonl`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print raw JSON")

	root.AddCommand(
		newClassifyCommand(factory, opts),
		newSearchCommand(factory, opts),
		newAnswerCommand(factory, opts),
		newHealthCommand(factory, opts),
		newLoadCommand(factory, opts),
	)
	return root
}

func withRuntime(cmd *cobra.Command, factory RuntimeFactory, fn func(*Runtime) error) error {
	rt, err := factory(cmd.Context())
	if err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}
	if rt.Close != nil {
		defer rt.Close()
	}
	return fn(rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
