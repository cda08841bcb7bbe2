package pathsync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// NormPath converts an OS path fragment into the canonical sync form:
// slash-separated and Unicode NFC. NFC avoids false mismatches between
// composed and decomposed filenames coming from different filesystems.
func NormPath(path string) string {
	return norm.NFC.String(filepath.ToSlash(path))
}

type scanEntry struct {
	size    int64
	modTime time.Time
	hash    string
}

// Scanner derives the local file map for one root. Hashes are cached across
// scans keyed by (size, mtime) so an unchanged tree rescans without rereading
// file contents.
type Scanner struct {
	root   string
	ignore *IgnoreList

	mu    sync.Mutex
	cache map[string]scanEntry
}

func NewScanner(root string, ignore *IgnoreList) *Scanner {
	return &Scanner{
		root:   root,
		ignore: ignore,
		cache:  make(map[string]scanEntry),
	}
}

// Scan walks the root and returns path→LocalFile for every non-ignored
// regular file. The result is ephemeral; callers must not retain it across
// passes.
func (s *Scanner) Scan() (map[string]LocalFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := make(map[string]LocalFile)
	nextCache := make(map[string]scanEntry)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("rel path %s: %w", path, err)
		}
		relPath := NormPath(rel)

		if d.IsDir() {
			if path != s.root && s.ignore.ShouldIgnore(relPath+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if s.ignore.ShouldIgnore(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("failed to stat file, skipping", "path", path, "error", err)
			return nil
		}

		var hash string
		if prev, ok := s.cache[relPath]; ok && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
			hash = prev.hash
		} else {
			hash, err = HashFile(path)
			if err != nil {
				slog.Warn("failed to hash file, skipping", "path", path, "error", err)
				return nil
			}
		}

		state[relPath] = LocalFile{Path: relPath, Hash: hash}
		nextCache[relPath] = scanEntry{size: info.Size(), modTime: info.ModTime(), hash: hash}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}

	s.cache = nextCache
	return state, nil
}
