package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc"},
	Short:   "Manage stored documents",
	Long:    `List, inspect, or delete documents in a collection.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in the collection",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentDeleteCmd = &cobra.Command{
	Use:     "delete [doc-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a document and its chunks",
	Args:    cobra.ExactArgs(1),
	RunE:    runDocumentDelete,
}

func init() {
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if err := requireService(documentService, "document"); err != nil {
		return err
	}

	collection := targetCollection()
	docs, err := documentService.List(cmd.Context(), collection)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Printf("No documents in collection: %s\n", collection)
		return nil
	}

	cmd.Printf("Documents in %s:\n\n", collection)
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		if source, ok := docs[i].Metadata[domain.MetaSource]; ok {
			cmd.Printf("    Source: %v\n", source)
		}
		cmd.Printf("    Chunks: %d\n", docs[i].ChunkCount)
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if err := requireService(documentService, "document"); err != nil {
		return err
	}

	doc, err := documentService.Get(cmd.Context(), targetCollection(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Collection: %s\n", doc.Collection)
	cmd.Printf("  Chunks:     %d\n", doc.ChunkCount)
	if !doc.CreatedAt.IsZero() {
		cmd.Printf("  Created:    %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	if len(doc.Metadata) > 0 {
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Println("\n  Metadata:")
		for _, k := range keys {
			cmd.Printf("    %s: %v\n", k, doc.Metadata[k])
		}
	}

	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if err := requireService(ingestService, "ingest"); err != nil {
		return err
	}

	if err := ingestService.DeleteDocument(cmd.Context(), targetCollection(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Deleted document %s\n", shortID(args[0]))
	return nil
}
