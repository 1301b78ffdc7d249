package syncmanager

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreFileName is the per-datasite exclude list, folded back from
// original_source's lib/ignore.py.
const ignoreFileName = ".syftignore"

// defaultIgnoreLines exclude paths the sync engine itself writes (temp
// files, conflict markers) plus common editor/VCS/OS noise, so a fresh
// datasite never has to spell these out itself.
var defaultIgnoreLines = []string{
	"*.sync.tmp.*",
	".sync-*.tmp",
	"*.conflict.*",
	".local_state-*.tmp",
	".git/",
	".DS_Store",
	"Thumbs.db",
	"__pycache__/",
	".ipynb_checkpoints/",
	".vscode",
	".idea",
}

// ignoreList filters candidate paths for exactly one datasite, combining the
// built-in defaults with that datasite's own .syftignore file. Lines are
// split across two matchers: sabhiram/go-gitignore handles ordinary
// gitignore syntax, while any line containing "**" is matched separately
// through doublestar, whose globstar semantics are stricter and more
// predictable than gitignore's implicit "**" handling (e.g. "data/**/*.csv"
// matching zero or more intermediate directories).
type ignoreList struct {
	matcher     *gitignore.GitIgnore
	globPattern []string
}

// loadIgnoreList reads datasiteRoot/.syftignore if present and compiles it
// alongside defaultIgnoreLines. A missing or unreadable file just falls back
// to the defaults.
func loadIgnoreList(datasiteRoot string) *ignoreList {
	lines := append([]string{}, defaultIgnoreLines...)

	if custom, err := readIgnoreFile(filepath.Join(datasiteRoot, ignoreFileName)); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("syncmanager: failed to read .syftignore", "root", datasiteRoot, "error", err)
		}
	} else {
		lines = append(lines, custom...)
	}

	var plainLines, globPattern []string
	for _, line := range lines {
		if strings.Contains(line, "**") {
			globPattern = append(globPattern, strings.TrimPrefix(line, "/"))
			continue
		}
		plainLines = append(plainLines, line)
	}

	return &ignoreList{
		matcher:     gitignore.CompileIgnoreLines(plainLines...),
		globPattern: globPattern,
	}
}

// shouldIgnore reports whether relPath (relative to the datasite root, e.g.
// "public/notes.txt") matches an ignore pattern.
func (l *ignoreList) shouldIgnore(relPath string) bool {
	if l == nil {
		return false
	}
	for _, pattern := range l.globPattern {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	if l.matcher == nil {
		return false
	}
	return l.matcher.MatchesPath(relPath)
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
