package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/CosmoTheDev/repomaint-agent/internal/metrics"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

const defaultMaxFileBytes = 1 << 20

// manifestFiles are captured verbatim from the repository root so mining
// can inspect dependencies without a clone.
var manifestFiles = []string{"go.mod", "package.json", "requirements.txt", "Cargo.toml", "pom.xml"}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"target":       true,
	"dist":         true,
}

type snapshot struct {
	languages map[models.Language]struct{}
	files     []models.CodeFile
	manifests map[string]string
}

// analyze walks root in lexical order, hashing every file of a tracked
// language. Unreadable files are logged and skipped.
func analyze(ctx context.Context, root string, maxBytes int64) (*snapshot, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	snap := &snapshot{
		languages: map[models.Language]struct{}{},
		manifests: map[string]string{},
	}

	for _, name := range manifestFiles {
		data, err := readCapped(filepath.Join(root, name), maxBytes)
		if err == nil {
			snap.manifests[name] = string(data)
		}
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("reading clone root: %w", err)
			}
			slog.Debug("Skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		lang := models.LanguageForPath(path)
		if lang == "" {
			return nil
		}
		snap.languages[lang] = struct{}{}

		info, err := d.Info()
		if err != nil {
			slog.Debug("Skipping file", "path", path, "error", err)
			return nil
		}
		if info.Size() > maxBytes {
			recordFile("too_large")
			return nil
		}
		sum, err := hashFile(path)
		if err != nil {
			slog.Warn("Failed to hash file", "path", path, "error", err)
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		snap.files = append(snap.files, models.CodeFile{
			Path:         filepath.ToSlash(rel),
			Language:     lang,
			ContentHash:  sum,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readCapped(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxBytes))
}

func recordFile(result string) {
	metrics.FilesIndexed.WithLabelValues(result).Inc()
}
