package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

var (
	collectionTopK      int
	collectionMinScore  float64
	collectionOverFetch int
	collectionYes       bool
	collectionJSON      bool
)

var collectionCmd = &cobra.Command{
	Use:     "collection",
	Aliases: []string{"col"},
	Short:   "Manage collections",
	Long: `A collection is one knowledge base. Every vector in it comes from the
same embedding model and has the same dimensions.`,
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a collection",
	Long: `Creates a collection bound to the configured embedding model.

Search defaults stored with the collection apply when a query does not set
--top-k or --min-score.`,
	Args: cobra.ExactArgs(1),
	RunE: runCollectionCreate,
}

var collectionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List collections",
	Args:    cobra.NoArgs,
	RunE:    runCollectionList,
}

var collectionStatsCmd = &cobra.Command{
	Use:   "stats [name]",
	Short: "Show document and chunk counts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCollectionStats,
}

var collectionDeleteCmd = &cobra.Command{
	Use:     "delete [name]",
	Aliases: []string{"rm"},
	Short:   "Delete a collection and all its documents",
	Args:    cobra.ExactArgs(1),
	RunE:    runCollectionDelete,
}

func init() {
	collectionCreateCmd.Flags().IntVar(&collectionTopK, "top-k", domain.DefaultTopK, "default number of results")
	collectionCreateCmd.Flags().Float64Var(&collectionMinScore, "min-score", domain.DefaultMinScore,
		"default minimum relevance score")
	collectionCreateCmd.Flags().IntVar(&collectionOverFetch, "over-fetch", domain.DefaultOverFetchFactor,
		"candidate pool multiplier for reranking")
	collectionListCmd.Flags().BoolVar(&collectionJSON, "json", false, "output as JSON")
	collectionDeleteCmd.Flags().BoolVarP(&collectionYes, "yes", "y", false, "skip confirmation")

	collectionCmd.AddCommand(collectionCreateCmd)
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionStatsCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	rootCmd.AddCommand(collectionCmd)
}

func runCollectionCreate(cmd *cobra.Command, args []string) error {
	if err := requireService(collectionService, "collection"); err != nil {
		return err
	}

	cfg := domain.CollectionConfig{
		Name:            args[0],
		DefaultTopK:     collectionTopK,
		DefaultMinScore: collectionMinScore,
		OverFetchFactor: collectionOverFetch,
	}
	created, err := collectionService.Create(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	cmd.Printf("Created collection %s\n", created.Name)
	cmd.Printf("  Model:      %s (%d dimensions)\n", created.EmbeddingModel, created.Dimensions)
	cmd.Printf("  Top K:      %d\n", created.DefaultTopK)
	cmd.Printf("  Min score:  %.2f\n", created.DefaultMinScore)
	cmd.Printf("  Over-fetch: %dx\n", created.OverFetchFactor)
	return nil
}

func runCollectionList(cmd *cobra.Command, _ []string) error {
	if err := requireService(collectionService, "collection"); err != nil {
		return err
	}

	collections, err := collectionService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if collectionJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(collections)
	}

	if len(collections) == 0 {
		cmd.Println("No collections.")
		return nil
	}

	def := targetCollection()
	for i := range collections {
		c := &collections[i]
		marker := " "
		if c.Name == def {
			marker = "*"
		}
		cmd.Printf("%s %s\n", marker, c.Name)
		cmd.Printf("    Model: %s (%d dimensions)\n", c.EmbeddingModel, c.Dimensions)
	}
	return nil
}

func runCollectionStats(cmd *cobra.Command, args []string) error {
	if err := requireService(collectionService, "collection"); err != nil {
		return err
	}

	name := targetCollection()
	if len(args) == 1 {
		name = args[0]
	}

	stats, err := collectionService.Stats(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	cmd.Printf("Collection: %s\n", stats.Name)
	cmd.Printf("  Documents: %d\n", stats.Documents)
	cmd.Printf("  Chunks:    %d\n", stats.Chunks)
	return nil
}

func runCollectionDelete(cmd *cobra.Command, args []string) error {
	if err := requireService(collectionService, "collection"); err != nil {
		return err
	}

	name := args[0]
	if !collectionYes {
		cmd.Printf("Delete collection %s and all its documents? [y/N]: ", name)
		if !confirm(cmd) {
			return errCancelled
		}
	}

	if err := collectionService.Delete(cmd.Context(), name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	cmd.Printf("Deleted collection %s\n", name)
	return nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func confirm(cmd *cobra.Command) bool {
	input, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
