package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

var (
	addText      string
	addStdin     bool
	addMeta      []string
	addChunkSize int
	addOverlap   int
	addRecursive bool
)

var addCmd = &cobra.Command{
	Use:   "add [file|dir...]",
	Short: "Add documents to the knowledge base",
	Long: `Chunks, embeds and stores documents in a collection.

Files are normalised by type (plain text, Markdown, DOCX, PDF). Directories
are walked when --recursive is set. Use --text or --stdin to add raw text.
Adding the same text twice is a no-op.

Examples:
  kbengine add notes.md handbook.pdf
  kbengine add --recursive ./docs
  kbengine add --text "AutoGen is a framework for building multi-agent applications" --meta source=wiki`,
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addText, "text", "t", "", "add this text as a document")
	addCmd.Flags().BoolVar(&addStdin, "stdin", false, "read one document from standard input")
	addCmd.Flags().StringArrayVarP(&addMeta, "meta", "m", nil, "metadata as key=value (repeatable)")
	addCmd.Flags().IntVar(&addChunkSize, "chunk-size", 0, "maximum chunk size in characters (default from settings)")
	addCmd.Flags().IntVar(&addOverlap, "overlap", 0, "chunk overlap in characters (default from settings)")
	addCmd.Flags().BoolVarP(&addRecursive, "recursive", "r", false, "walk directories")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if err := requireService(ingestService, "ingest"); err != nil {
		return err
	}
	if len(args) == 0 && addText == "" && !addStdin {
		return errors.New("nothing to add: pass files, --text or --stdin")
	}

	metadata, err := parseMetadata(addMeta)
	if err != nil {
		return err
	}
	opts := chunkOptionsFromFlags()

	ctx := cmd.Context()
	collection := targetCollection()
	if collectionService != nil {
		if _, err := collectionService.Ensure(ctx, collection); err != nil {
			return fmt.Errorf("opening collection %s: %w", collection, err)
		}
	}

	if addText != "" {
		id, err := ingestService.Ingest(ctx, collection, addText, metadata, opts)
		if err != nil {
			return fmt.Errorf("adding text: %w", err)
		}
		cmd.Printf("Added text as %s\n", shortID(id))
	}

	if addStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		id, err := ingestService.Ingest(ctx, collection, string(data), metadata, opts)
		if err != nil {
			return fmt.Errorf("adding stdin: %w", err)
		}
		cmd.Printf("Added stdin as %s\n", shortID(id))
	}

	paths, err := collectFiles(args, addRecursive)
	if err != nil {
		return err
	}

	var failed int
	for _, path := range paths {
		id, err := ingestFile(cmd, collection, path, metadata, opts)
		if err != nil {
			failed++
			cmd.PrintErrf("  ✗ %s: %v\n", path, err)
			continue
		}
		cmd.Printf("  ✓ %s → %s\n", path, shortID(id))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

// ingestFile reads path and ingests it through the normalisers.
func ingestFile(
	cmd *cobra.Command,
	collection, path string,
	metadata map[string]any,
	opts domain.ChunkOptions,
) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	raw := &domain.RawDocument{
		URI:      path,
		Content:  content,
		Metadata: domain.CopyMetadata(metadata),
	}
	return ingestService.IngestFile(cmd.Context(), collection, raw, opts)
}

// collectFiles expands directories into regular files. Hidden files and
// directories are skipped during a walk.
func collectFiles(args []string, recursive bool) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use --recursive)", arg)
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != arg && isHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// parseMetadata turns key=value pairs into a metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	metadata := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: metadata must be key=value, got %q", domain.ErrInvalidInput, pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}

// chunkOptionsFromFlags returns zero options unless a chunk flag is set,
// so the ingest service applies its configured defaults.
func chunkOptionsFromFlags() domain.ChunkOptions {
	if addChunkSize == 0 && addOverlap == 0 {
		return domain.ChunkOptions{}
	}
	opts := domain.DefaultChunkOptions()
	if addChunkSize > 0 {
		opts.ChunkSize = addChunkSize
	}
	if addOverlap > 0 {
		opts.Overlap = addOverlap
	}
	return opts
}
