// Package selector decides which files of a repository are worth analysing
package selector

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
)

// DefaultMaxFileSize is the size ceiling in bytes
const DefaultMaxFileSize = 100 * 1024

// DefaultExtensions are the source extensions analysed when none are configured
var DefaultExtensions = []string{
	".py", ".js", ".java", ".ts", ".jsx", ".tsx",
	".html", ".css", ".md", ".yml", ".yaml", ".go",
}

// DefaultIgnoredDirs are never descended into
var DefaultIgnoredDirs = []string{
	"node_modules", "venv", ".git", "__pycache__", "dist", "build", "vendor",
}

// Options tune selection. Zero values fall back to the defaults.
type Options struct {
	Extensions  []string
	IgnoredDirs []string
	Exclude     []string
	MaxFileSize int
	// MaxFiles caps the selection after sorting; 0 means no cap
	MaxFiles int
}

// Lister is the slice of the repository host the selector needs
type Lister interface {
	ListTree(ctx context.Context, repo types.Repo, ref string) ([]types.TreeEntry, error)
}

// Selector lists candidate files of one repository
type Selector struct {
	logger     *log.Logger
	lister     Lister
	repo       types.Repo
	extensions map[string]bool
	ignored    map[string]bool
	matcher    *PatternMatcher
	maxSize    int
	maxFiles   int
}

// New creates a selector
func New(logger *log.Logger, lister Lister, repo types.Repo, opts Options) (*Selector, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if lister == nil {
		return nil, errors.New("repository host is required")
	}
	if repo.IsZero() {
		return nil, errors.New("repository is required")
	}

	matcher, err := NewPatternMatcher(opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern matcher: %w", err)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	dirs := opts.IgnoredDirs
	if len(dirs) == 0 {
		dirs = DefaultIgnoredDirs
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	s := &Selector{
		logger:     logger,
		lister:     lister,
		repo:       repo,
		extensions: make(map[string]bool, len(exts)),
		ignored:    make(map[string]bool, len(dirs)),
		matcher:    matcher,
		maxSize:    maxSize,
		maxFiles:   opts.MaxFiles,
	}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		s.extensions[e] = true
	}
	for _, d := range dirs {
		s.ignored[strings.Trim(d, "/")] = true
	}
	return s, nil
}

// Select lists the tree at ref and returns the candidates sorted by path.
// Files above the size ceiling are logged and left out.
func (s *Selector) Select(ctx context.Context, ref string) ([]types.CandidateFile, error) {
	entries, err := s.lister.ListTree(ctx, s.repo, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s@%s: %w", s.repo, ref, err)
	}

	var out []types.CandidateFile
	for _, e := range entries {
		if !s.wanted(e.Path) {
			continue
		}
		if e.Size > s.maxSize {
			s.logger.Warning("Skipping %s: %d bytes exceeds the %d byte limit", e.Path, e.Size, s.maxSize)
			continue
		}
		out = append(out, types.NewCandidate(e.Path, e.Size))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	if s.maxFiles > 0 && len(out) > s.maxFiles {
		s.logger.Info("Limiting selection to %d of %d files", s.maxFiles, len(out))
		out = out[:s.maxFiles]
	}

	s.logger.Debug("Selected %d of %d files at %s", len(out), len(entries), ref)
	return out, nil
}

func (s *Selector) wanted(p string) bool {
	if !s.extensions[strings.ToLower(path.Ext(p))] {
		return false
	}
	for _, dir := range strings.Split(path.Dir(p), "/") {
		if s.ignored[dir] {
			return false
		}
	}
	return !s.matcher.Excluded(p)
}
