package mirror

import (
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreMatcher decides which local names stay out of the archive.
// Entries use gitignore syntax: bare names (".DS_Store") and globs
// ("*.tmp") match at any depth, "cache/" matches only directories.
type IgnoreMatcher struct {
	ignore *gitignore.GitIgnore
}

// NewIgnoreMatcher builds a matcher, dropping blank patterns
func NewIgnoreMatcher(patterns []string) *IgnoreMatcher {
	var kept []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return &IgnoreMatcher{}
	}
	return &IgnoreMatcher{ignore: gitignore.CompileIgnoreLines(kept...)}
}

// IsIgnored reports whether relPath (slash-separated, relative to the
// staging directory) is ignored
func (m *IgnoreMatcher) IsIgnored(relPath string, isDir bool) bool {
	if m == nil || m.ignore == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	if relPath == "" {
		return false
	}
	// directory-only patterns end in "/"
	if isDir {
		relPath += "/"
	}
	return m.ignore.MatchesPath(relPath)
}
