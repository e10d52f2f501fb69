// Package changeset packages successful proposals into reviewable units:
// a unified diff, a commit title and a pull request description.
package changeset

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
)

const (
	// MaxTitleLength bounds commit titles, in runes
	MaxTitleLength = 100
	// MaxDescriptionLength bounds pull request bodies, in runes
	MaxDescriptionLength = 60000

	descriptionHeader = "# RepoSage: AI-Suggested Code Improvements"
	truncatedNote     = "\n\n_(description truncated)_"
)

// Changeset is one independently landable unit
type Changeset struct {
	ID          string                 `json:"id"`
	Proposals   []types.ChangeProposal `json:"proposals"`
	Diff        string                 `json:"diff"`
	Title       string                 `json:"title"`
	PRTitle     string                 `json:"pr_title"`
	Description string                 `json:"description"`
}

// Paths returns the files the changeset touches
func (c Changeset) Paths() []string {
	out := make([]string, len(c.Proposals))
	for i, p := range c.Proposals {
		out[i] = p.File.Path
	}
	return out
}

// Summary returns the first non-empty proposal summary
func (c Changeset) Summary() string {
	for _, p := range c.Proposals {
		if p.Summary != "" {
			return p.Summary
		}
	}
	return ""
}

// Grouper decides which proposals land together
type Grouper interface {
	Group(proposals []types.ChangeProposal) [][]types.ChangeProposal
}

// OnePerFile puts every proposal in its own changeset
type OnePerFile struct{}

func (OnePerFile) Group(proposals []types.ChangeProposal) [][]types.ChangeProposal {
	out := make([][]types.ChangeProposal, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, []types.ChangeProposal{p})
	}
	return out
}

// AllInOne puts every proposal in a single changeset
type AllInOne struct{}

func (AllInOne) Group(proposals []types.ChangeProposal) [][]types.ChangeProposal {
	if len(proposals) == 0 {
		return nil
	}
	return [][]types.ChangeProposal{proposals}
}

// GrouperFor maps a configured grouping name to a Grouper
func GrouperFor(name string) (Grouper, error) {
	switch name {
	case "", "file":
		return OnePerFile{}, nil
	case "all":
		return AllInOne{}, nil
	default:
		return nil, fmt.Errorf("unknown grouping %q: want file or all", name)
	}
}

// Assembler turns proposals into changesets
type Assembler struct {
	logger  *log.Logger
	grouper Grouper
}

// NewAssembler creates an assembler. A nil grouper means OnePerFile.
func NewAssembler(logger *log.Logger, grouper Grouper) *Assembler {
	if logger == nil {
		logger = log.Discard()
	}
	if grouper == nil {
		grouper = OnePerFile{}
	}
	return &Assembler{logger: logger, grouper: grouper}
}

// Assemble keeps the succeeded proposals that change their file and packages
// them. Skipped and failed proposals are dropped here; they still appear in
// the run summary. Changesets with an empty diff are discarded.
func (a *Assembler) Assemble(proposals []types.ChangeProposal) []Changeset {
	var kept []types.ChangeProposal
	for _, p := range proposals {
		if p.Outcome != types.OutcomeSucceeded || !p.Changed() {
			continue
		}
		kept = append(kept, p)
	}

	var out []Changeset
	for _, group := range a.grouper.Group(kept) {
		cs, err := build(group)
		if err != nil {
			a.logger.Error("Failed to assemble changeset: %v", err)
			continue
		}
		if cs.Diff == "" {
			a.logger.Debug("Discarding empty changeset %s", cs.ID)
			continue
		}
		a.logger.Diff("Changeset %s: %s", cs.ID, cs.Title)
		out = append(out, cs)
	}
	return out
}

func build(group []types.ChangeProposal) (Changeset, error) {
	cs := Changeset{Proposals: group}
	if len(group) == 0 {
		return cs, nil
	}

	var diffs []string
	for _, p := range group {
		d, err := Diff(p.File.Path, p.Original, p.Proposed)
		if err != nil {
			return cs, fmt.Errorf("failed to diff %s: %w", p.File.Path, err)
		}
		if d != "" {
			diffs = append(diffs, d)
		}
	}
	cs.Diff = strings.Join(diffs, "")

	subject := group[0].File.Path
	cs.ID = Slug(subject)
	if len(group) > 1 {
		subject = fmt.Sprintf("%d files", len(group))
		cs.ID += fmt.Sprintf("-and-%d-more", len(group)-1)
	}

	title := "Improve " + subject
	if s := firstLine(cs.Summary()); s != "" {
		title += ": " + s
	}
	cs.Title = Truncate(title, MaxTitleLength, "...")
	cs.PRTitle = Truncate("RepoSage: Improve "+subject, MaxTitleLength, "...")
	cs.Description = Truncate(describe(cs), MaxDescriptionLength, truncatedNote)
	return cs, nil
}

func describe(cs Changeset) string {
	var b strings.Builder
	b.WriteString(descriptionHeader + "\n\n")
	b.WriteString("## Summary\n\n")
	if s := cs.Summary(); s != "" {
		b.WriteString(s + "\n\n")
	} else {
		b.WriteString("Automated improvements suggested by a code review model.\n\n")
	}

	b.WriteString("## Changes\n\n")
	for _, p := range cs.Proposals {
		fmt.Fprintf(&b, "### `%s`\n\n", p.File.Path)
		if p.Rationale != "" {
			b.WriteString(p.Rationale + "\n\n")
		}
	}

	models := map[string]bool{}
	var names []string
	for _, p := range cs.Proposals {
		if p.Model != "" && !models[p.Model] {
			models[p.Model] = true
			names = append(names, p.Model)
		}
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, "---\n_Suggested by %s. Please review before merging._\n", strings.Join(names, ", "))
	}
	return b.String()
}

// Diff renders a unified diff with a/ and b/ labels. Identical contents give
// an empty string.
func Diff(path, original, proposed string) (string, error) {
	if original == proposed {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(proposed),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
}

// Truncate bounds s to max runes, replacing the tail with suffix when cut
func Truncate(s string, max int, suffix string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + suffix
}

// Slug turns a path into a branch-safe identifier
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	if slug == "" {
		slug = "changes"
	}
	return slug
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
