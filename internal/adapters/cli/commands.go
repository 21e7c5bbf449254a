package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

const maxCorpusLineBytes = 4 << 20

func newClassifyCommand(factory RuntimeFactory, opts *options) *cobra.Command {
	var force string
	cmd := &cobra.Command{
		Use:   "classify QUERY",
		Short: "Show how a query would be routed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, factory, func(rt *Runtime) error {
				decision, err := rt.Service.Classify(strings.Join(args, " "), domain.QueryLabel(strings.ToUpper(force)))
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), decision)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "label:  %s\n", decision.Label)
				fmt.Fprintf(out, "rule:   %s\n", decision.Rule)
				fmt.Fprintf(out, "scores: simple=%d complex=%d\n", decision.SimpleScore, decision.ComplexScore)
				if decision.ExtractedCodeFilter != "" {
					fmt.Fprintf(out, "code:   %s\n", decision.ExtractedCodeFilter)
				}
				fmt.Fprintf(out, "reason: %s\n", decision.Reason)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&force, "force", "", "force SIMPLE or COMPLEX")
	return cmd
}

type searchFlags struct {
	mode   string
	limit  int
	offset int
	fusion string
	code   string
}

func newSearchCommand(factory RuntimeFactory, opts *options) *cobra.Command {
	flags := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Run a keyword, semantic, hybrid or auto-routed search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := domain.ParseSearchMode(flags.mode)
			if err != nil {
				return err
			}
			req := ports.SearchRequest{
				Query:   strings.Join(args, " "),
				Limit:   flags.limit,
				Offset:  flags.offset,
				Mode:    mode,
				Filters: domain.SearchFilters{Code: strings.ToUpper(flags.code)},
			}
			if flags.fusion != "" {
				if req.FusionMethod, err = domain.ParseFusionMethod(flags.fusion); err != nil {
					return err
				}
			}

			return withRuntime(cmd, factory, func(rt *Runtime) error {
				resp, err := rt.Service.Search(cmd.Context(), req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d of %d results (%s, %.1f ms)\n", resp.Returned, resp.Total, resp.Mode, resp.QueryTimeMs)
				if len(resp.DegradedSources) > 0 {
					fmt.Fprintf(out, "degraded: %v\n", resp.DegradedSources)
				}
				printResults(out, resp.Results)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", "auto", "auto, keyword, semantic or hybrid")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "results per page (default from config)")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "results to skip")
	cmd.Flags().StringVar(&flags.fusion, "fusion", "", "rrf or weighted")
	cmd.Flags().StringVar(&flags.code, "code", "", "restrict to one code, e.g. PEN")
	return cmd
}

func newAnswerCommand(factory RuntimeFactory, opts *options) *cobra.Command {
	var (
		limit int
		force string
	)
	cmd := &cobra.Command{
		Use:   "answer QUERY",
		Short: "Classify, retrieve and summarize an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, factory, func(rt *Runtime) error {
				resp, err := rt.Service.Answer(cmd.Context(), ports.AnswerRequest{
					Query:     strings.Join(args, " "),
					Limit:     limit,
					ForceMode: domain.QueryLabel(strings.ToUpper(force)),
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s query, %s search, %d results\n", resp.Classification.Label, resp.SearchMode, len(resp.Results))
				if resp.RAGContext != nil {
					fmt.Fprintf(out, "\n%s\n\n(%s)\n\n", resp.RAGContext.Summary, resp.RAGContext.GenerationMethod)
				}
				printResults(out, resp.Results)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "results to retrieve (default from config)")
	cmd.Flags().StringVar(&force, "force", "", "force SIMPLE or COMPLEX")
	return cmd
}

func newHealthCommand(factory RuntimeFactory, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, factory, func(rt *Runtime) error {
				report := rt.Service.Health(cmd.Context())
				if opts.jsonOutput {
					if err := printJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "status:  %s\n", report.Status)
					fmt.Fprintf(out, "keyword: %s %s connected=%t documents=%d\n",
						report.Keyword.Backend, report.Keyword.Index, report.Keyword.Connected, report.Keyword.DocumentCount)
					fmt.Fprintf(out, "vector:  %s %s connected=%t points=%d\n",
						report.Vector.Backend, report.Vector.Collection, report.Vector.Connected, report.Vector.PointCount)
				}
				if report.Status != domain.HealthHealthy {
					return fmt.Errorf("backends are %s", report.Status)
				}
				return nil
			})
		},
	}
}

func newLoadCommand(factory RuntimeFactory, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load FILE",
		Short: "Index code sections from a JSON Lines file (- for stdin)",
		Long: `load reads one section per line in the document JSON shape
({"document_id": ..., "title": ..., "section": ..., "content": ..., "code": ...})
and writes it to the embedded keyword index and the pgvector store when those
backends are configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open corpus: %w", err)
				}
				defer f.Close()
				in = f
			}
			docs, err := readSections(in)
			if err != nil {
				return err
			}

			return withRuntime(cmd, factory, func(rt *Runtime) error {
				if rt.Loader == nil {
					return fmt.Errorf("no loader configured")
				}
				report, err := rt.Loader.Load(cmd.Context(), docs)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), report)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "read=%d indexed=%d embedded=%d skipped=%d\n",
					report.Read, report.Indexed, report.Embedded, report.Skipped)
				return nil
			})
		},
	}
}

func readSections(r io.Reader) ([]domain.RetrievedDocument, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxCorpusLineBytes)

	var docs []domain.RetrievedDocument
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var doc domain.RetrievedDocument
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return docs, nil
}

func printResults(w io.Writer, results []domain.FusedResult) {
	for i, r := range results {
		fmt.Fprintf(w, "%2d. %-14s %.4f  %s  %v\n",
			i+1, r.Document.Reference(), r.FusedScore, r.Document.Title, r.ContributingSources)
	}
}
