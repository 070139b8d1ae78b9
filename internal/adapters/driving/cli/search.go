package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

var (
	searchTopK     int
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Finds the passages most relevant to a question.

Candidates are recalled by vector similarity, reranked by the relevance
model when DASHSCOPE_API_KEY is set, filtered by --min-score and
de-duplicated by content.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "maximum number of results (default from collection)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum relevance score (default from collection)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireService(searchService, "search"); err != nil {
		return err
	}

	opts := domain.SearchOptions{TopK: searchTopK}
	if cmd.Flags().Changed("min-score") {
		opts.MinScore = domain.Float64(searchMinScore)
	}

	results, err := searchService.Search(cmd.Context(), targetCollection(), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	outputSearchTable(cmd, results)
	return nil
}

func outputSearchJSON(cmd *cobra.Command, results []domain.RankedResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.RankedResult) {
	out := cmd.OutOrStdout()
	styles := NewStyles(out, nil)

	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println(styles.Render(styles.Title, "Results:"))
	cmd.Println()

	width := terminalWidth(out, 100) - 6
	for i := range results {
		r := &results[i]

		source, _ := r.Metadata[domain.MetaSource].(string)
		if source == "" {
			source = shortID(r.DocumentID)
		}

		score := fmt.Sprintf("vector %.3f", r.VectorScore)
		if r.RerankScore != nil {
			score = fmt.Sprintf("rerank %.3f, %s", *r.RerankScore, score)
		}

		cmd.Printf("  [%d] %s %s\n", i+1,
			styles.Render(styles.Source, source),
			styles.Render(styles.Score, "("+score+")"))

		snippet := snippetOf(r.Content, 300)
		if styles.Styled {
			cmd.Println(styles.Card.Width(width).MarginLeft(6).Render(snippet))
		} else {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}
}

// snippetOf collapses whitespace and truncates to limit runes.
func snippetOf(content string, limit int) string {
	text := strings.Join(strings.Fields(content), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// shortID abbreviates content hashes for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
