package selector

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// PatternMatcher matches repository paths against exclusion globs. A pattern
// without a slash also matches the base name, so "*.min.js" excludes minified
// files at any depth while "docs/**" only excludes under docs/.
type PatternMatcher struct {
	patterns []glob.Glob
	baseOnly []bool
}

// NewPatternMatcher compiles patterns
func NewPatternMatcher(patterns []string) (*PatternMatcher, error) {
	pm := &PatternMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", p, err)
		}
		pm.patterns = append(pm.patterns, g)
		pm.baseOnly = append(pm.baseOnly, !strings.Contains(p, "/"))
	}
	return pm, nil
}

// Excluded reports whether p matches any pattern
func (pm *PatternMatcher) Excluded(p string) bool {
	p = path.Clean(p)
	base := path.Base(p)
	for i, g := range pm.patterns {
		if g.Match(p) {
			return true
		}
		if pm.baseOnly[i] && g.Match(base) {
			return true
		}
	}
	return false
}
