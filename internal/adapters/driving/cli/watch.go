package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/logger"
	"github.com/custodia-labs/kbengine/internal/watcher"
)

var (
	watchDebounce time.Duration
	watchInitial  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest files as they appear in a folder",
	Long: `Watches a folder and ingests files when they are created or written.

Hidden files and directories are ignored. With --initial, files already in
the folder are ingested before watching starts. When a watched file changes,
the previous version ingested in this session is replaced. Press Ctrl+C to
stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce,
		"quiet period before a changed file is ingested")
	watchCmd.Flags().BoolVar(&watchInitial, "initial", false, "ingest existing files first")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireService(ingestService, "ingest"); err != nil {
		return err
	}

	ctx := cmd.Context()
	collection := targetCollection()
	if collectionService != nil {
		if _, err := collectionService.Ensure(ctx, collection); err != nil {
			return fmt.Errorf("opening collection %s: %w", collection, err)
		}
	}

	w := watcher.New(args[0], watcher.WithDebounce(watchDebounce))
	defer w.Close()

	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	fi := newFolderIngester(cmd, collection)
	if watchInitial {
		if err := fi.ingestExisting(ctx, args[0]); err != nil {
			return err
		}
	}

	cmd.Printf("Watching %s (collection %s)\n", args[0], collection)
	for change := range changes {
		fi.handle(ctx, change)
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	cmd.Println("Stopped watching.")
	return nil
}

// folderIngester ingests changed files and remembers the document ID of
// each path so a rewritten file replaces its previous version.
type folderIngester struct {
	cmd        *cobra.Command
	collection string

	mu   sync.Mutex
	docs map[string]string
}

func newFolderIngester(cmd *cobra.Command, collection string) *folderIngester {
	return &folderIngester{
		cmd:        cmd,
		collection: collection,
		docs:       make(map[string]string),
	}
}

func (f *folderIngester) ingestExisting(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			f.handle(ctx, watcher.Change{Path: path, Type: watcher.ChangeCreated})
		}
		return ctx.Err()
	})
}

func (f *folderIngester) handle(ctx context.Context, change watcher.Change) {
	log := logger.WithFields(logger.Fields{
		"path":       change.Path,
		"change":     change.Type.String(),
		"collection": f.collection,
	})

	if change.Type == watcher.ChangeDeleted {
		f.forget(ctx, change.Path)
		log.Info("file removed")
		return
	}

	content, err := os.ReadFile(change.Path)
	if err != nil {
		log.Warn("read failed: %v", err)
		return
	}

	raw := &domain.RawDocument{URI: change.Path, Content: content}
	id, err := ingestService.IngestFile(ctx, f.collection, raw, domain.ChunkOptions{})
	if err != nil {
		f.cmd.PrintErrf("  ✗ %s: %v\n", change.Path, err)
		log.Warn("ingest failed: %v", err)
		return
	}

	f.mu.Lock()
	previous := f.docs[change.Path]
	f.docs[change.Path] = id
	shared := f.referencedLocked(previous)
	f.mu.Unlock()

	if previous != "" && previous != id && !shared {
		if err := ingestService.DeleteDocument(ctx, f.collection, previous); err != nil {
			log.Warn("removing previous version: %v", err)
		}
	}

	f.cmd.Printf("  ✓ %s → %s\n", change.Path, shortID(id))
	log.Debug("ingested %s", id)
}

// forget deletes the document last ingested from path, if any.
func (f *folderIngester) forget(ctx context.Context, path string) {
	f.mu.Lock()
	id, ok := f.docs[path]
	delete(f.docs, path)
	shared := ok && f.referencedLocked(id)
	f.mu.Unlock()

	if !ok {
		return
	}
	if shared {
		f.cmd.Printf("  - %s\n", path)
		return
	}
	if err := ingestService.DeleteDocument(ctx, f.collection, id); err != nil {
		logger.Warn("removing %s: %v", path, err)
		return
	}
	f.cmd.Printf("  - %s\n", path)
}

// referencedLocked reports whether any watched path still maps to id.
// Identical files share a content-hash ID. Callers hold f.mu.
func (f *folderIngester) referencedLocked(id string) bool {
	if id == "" {
		return false
	}
	for _, other := range f.docs {
		if other == id {
			return true
		}
	}
	return false
}
