package pathsync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/driftsync/driftsync/internal/utils"
)

// IgnoreFileName holds per-root ignore rules in gitignore syntax, merged over
// the defaults.
const IgnoreFileName = ".driftsyncignore"

var defaultIgnoreLines = []string{
	// driftsync internals
	".driftsync/",
	".driftsyncignore",
	"*.local",
	"*.remote",
	"*.merge",
	// VCS
	".git/",
	".svn/",
	".hg/",
	// dependency trees
	"node_modules/",
	"__pycache__/",
	"*.py[cod]",
	"venv/",
	".venv/",
	"dist/",
	"build/",
	// IDE/Editor-specific
	".vscode/",
	".idea/",
	"*.swp",
	"*~",
	// General excludes
	"*.tmp",
	"*.log",
	"logs/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList decides which root-relative paths are excluded from syncing.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	il := &IgnoreList{baseDir: baseDir}
	il.ignore = gitignore.CompileIgnoreLines(defaultIgnoreLines...)
	return il
}

// Load merges rules from the root's ignore file, if present, over the
// defaults. Safe to call again to pick up edits.
func (il *IgnoreList) Load() {
	ignorePath := filepath.Join(il.baseDir, IgnoreFileName)
	lines := append([]string(nil), defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					lines = append(lines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	il.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore matches a root-relative, slash-separated path.
func (il *IgnoreList) ShouldIgnore(relPath string) bool {
	return il.ignore.MatchesPath(relPath)
}
