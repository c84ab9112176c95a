package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/wevn/wevn/models"
)

// Metadata keys the importer stamps on nodes it creates, so file nodes
// can be found and replaced when their source changes.
const (
	MetaSourceFile = "source_file"
	MetaFileHash   = "file_hash"
)

// ImportService turns files from a notes directory into graph nodes:
// one node per chunk, named after the file. A content hash per file
// makes rescans idempotent, and a filesystem watcher keeps the
// collection in sync while the server runs.
type ImportService struct {
	store      VectorStore
	embedder   Embedder
	notifier   Notifier
	collection string
	logger     *zap.SugaredLogger
}

func NewImportService(store VectorStore, embedder Embedder, notifier Notifier, collection string, logger *zap.SugaredLogger) *ImportService {
	return &ImportService{
		store:      store,
		embedder:   embedder,
		notifier:   notifier,
		collection: collection,
		logger:     logger,
	}
}

// WatchDirectory blocks, re-importing files as they change, until the
// context is cancelled.
func (s *ImportService) WatchDirectory(ctx context.Context, dirPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Errorw("import: failed to create file watcher", "error", err)
		return
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isSupportedFile(event.Name) {
					continue
				}
				// Editors often save via a temp file plus rename, so
				// Create and Write are handled the same way.
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.logger.Infow("import: file changed", "path", event.Name)
					if err := s.importFile(ctx, event.Name); err != nil {
						s.logger.Errorw("import: failed to import file", "path", event.Name, "error", err)
					}
				} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					s.logger.Infow("import: file removed", "path", event.Name)
					if err := s.removeFileNodes(ctx, event.Name); err != nil {
						s.logger.Errorw("import: failed to remove file nodes", "path", event.Name, "error", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Errorw("import: watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := watcher.Add(dirPath); err != nil {
		s.logger.Errorw("import: failed to watch directory", "path", dirPath, "error", err)
		return
	}
	s.logger.Infow("import: watching directory", "path", dirPath)
	<-ctx.Done()
}

// ScanDirectory syncs the collection with the directory: imports new
// and changed files, removes nodes whose source file is gone.
func (s *ImportService) ScanDirectory(ctx context.Context, dirPath string) error {
	indexed, err := s.indexedFiles(ctx)
	if err != nil {
		return fmt.Errorf("read index state: %w", err)
	}

	local := make(map[string]bool)
	err = filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isSupportedFile(path) {
			return nil
		}
		local[path] = true
		hash, err := fileHash(path)
		if err != nil {
			s.logger.Warnw("import: could not hash file", "path", path, "error", err)
			return nil
		}
		if indexed[path] == hash {
			return nil
		}
		if err := s.importFile(ctx, path); err != nil {
			s.logger.Errorw("import: failed to import file", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dirPath, err)
	}

	for path := range indexed {
		if !local[path] {
			if err := s.removeFileNodes(ctx, path); err != nil {
				s.logger.Errorw("import: failed to remove file nodes", "path", path, "error", err)
			}
		}
	}
	return nil
}

// importFile replaces any nodes from a previous version of the file
// with freshly chunked and embedded ones.
func (s *ImportService) importFile(ctx context.Context, path string) error {
	text, err := ExtractTextFromFile(path)
	if err != nil {
		return err
	}
	hash, err := fileHash(path)
	if err != nil {
		return err
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(1000),
		textsplitter.WithChunkOverlap(100),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return fmt.Errorf("split %s: %w", path, err)
	}

	if err := s.removeNodesQuietly(ctx, path); err != nil {
		return err
	}

	base := filepath.Base(path)
	docs := make([]Document, 0, len(chunks))
	for i, chunk := range chunks {
		name := base
		if len(chunks) > 1 {
			name = fmt.Sprintf("%s (part %d)", base, i+1)
		}
		vec, err := s.embedder.Embed(ctx, embedText(name, chunk))
		if err != nil {
			return fmt.Errorf("embed chunk %d of %s: %w", i, path, err)
		}
		meta := models.EncodeLinkMetadata(name, nil, nil)
		meta[MetaSourceFile] = path
		meta[MetaFileHash] = hash
		docs = append(docs, Document{
			ID:        uuid.NewString(),
			Content:   chunk,
			Embedding: vec,
			Metadata:  meta,
		})
	}
	if err := s.store.Upsert(ctx, s.collection, docs); err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}
	s.logger.Infow("import: imported file", "path", path, "chunks", len(docs))
	s.notifier.Broadcast(models.Notification{Type: models.ChangeNode})
	return nil
}

func (s *ImportService) removeFileNodes(ctx context.Context, path string) error {
	if err := s.removeNodesQuietly(ctx, path); err != nil {
		return err
	}
	s.notifier.Broadcast(models.Notification{Type: models.ChangeNode})
	return nil
}

func (s *ImportService) removeNodesQuietly(ctx context.Context, path string) error {
	docs, err := s.store.Get(ctx, s.collection, nil, false)
	if err != nil {
		return err
	}
	var ids []string
	for _, d := range docs {
		if d.Metadata[MetaSourceFile] == path {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.store.Delete(ctx, s.collection, ids)
}

// indexedFiles maps each imported source path to its stored hash.
func (s *ImportService) indexedFiles(ctx context.Context) (map[string]string, error) {
	docs, err := s.store.Get(ctx, s.collection, nil, false)
	if err != nil {
		return nil, err
	}
	state := make(map[string]string)
	for _, d := range docs {
		path := d.Metadata[MetaSourceFile]
		if path == "" {
			continue
		}
		if _, ok := state[path]; !ok {
			state[path] = d.Metadata[MetaFileHash]
		}
	}
	return state, nil
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	default:
		return false
	}
}

func fileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
