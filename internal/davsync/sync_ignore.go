package davsync

import (
	"bufio"
	"log/slog"
	"os"
	"strings"

	"github.com/dogcuisine/davsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	// davsync
	"davsyncignore",
	".davsync/",
	// editors and partial writes
	"*.tmp",
	"*.part",
	"*.swp",
	"*~",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// SyncIgnoreList decides which logical paths never leave the machine.
type SyncIgnoreList struct {
	ignore *gitignore.GitIgnore
	rules  int
}

// NewSyncIgnoreList compiles the default rules plus any extra lines.
func NewSyncIgnoreList(extra ...string) *SyncIgnoreList {
	lines := append(append([]string{}, defaultIgnoreLines...), extra...)
	return &SyncIgnoreList{
		ignore: gitignore.CompileIgnoreLines(lines...),
		rules:  len(lines),
	}
}

// LoadSyncIgnoreList reads gitignore-style rules from path on top of the
// defaults. A missing or unreadable file only yields the defaults.
func LoadSyncIgnoreList(path string) *SyncIgnoreList {
	if !utils.FileExists(path) {
		return NewSyncIgnoreList()
	}

	file, err := os.Open(path)
	if err != nil {
		slog.Warn("failed to open ignore file", "path", path, "error", err)
		return NewSyncIgnoreList()
	}
	defer file.Close()

	var extra []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			extra = append(extra, line)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("error reading ignore file", "path", path, "error", err)
	} else {
		slog.Info("loaded ignore file", "path", path, "rules", len(extra))
	}

	return NewSyncIgnoreList(extra...)
}

func (s *SyncIgnoreList) ShouldIgnore(logicalPath string) bool {
	if s == nil || s.ignore == nil {
		return false
	}
	return s.ignore.MatchesPath(logicalPath)
}
