// Package changelog records what past runs landed, so later runs can give the
// model context about recent changes.
package changelog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/saint0x/reposage/pkg/types"
)

// Category is the Keep-a-Changelog section an entry belongs to
type Category string

const (
	CategoryAdded   Category = "Added"
	CategoryChanged Category = "Changed"
	CategoryFixed   Category = "Fixed"
)

var categoryOrder = []Category{CategoryAdded, CategoryChanged, CategoryFixed}

// Entry is one landed change. Entries are only ever appended.
type Entry struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Summary   string    `yaml:"summary" json:"summary"`
	Paths     []string  `yaml:"paths" json:"paths"`
	Category  Category  `yaml:"category" json:"category"`
	// Ref is the commit SHA or pull request URL the change landed as
	Ref string `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// Store persists entries per repository
type Store interface {
	ReadAll(ctx context.Context, repo types.Repo) ([]Entry, error)
	Append(ctx context.Context, repo types.Repo, entry Entry) error
}

var (
	fixedWords = words("fix", "fixes", "fixed", "fixing", "bug", "bugs", "error", "errors", "crash", "crashes")
	addedWords = words("add", "adds", "added", "adding", "new", "introduce", "introduces", "introduced", "implement", "implements", "implemented")
)

func words(w ...string) map[string]bool {
	m := make(map[string]bool, len(w))
	for _, s := range w {
		m[s] = true
	}
	return m
}

// InferCategory picks a category from free text. Fixes win over additions.
func InferCategory(text string) Category {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	added := false
	for _, t := range tokens {
		if fixedWords[t] {
			return CategoryFixed
		}
		if addedWords[t] {
			added = true
		}
	}
	if added {
		return CategoryAdded
	}
	return CategoryChanged
}

// Counter returns the size of s in tokens
type Counter func(s string) int

// Excerpt renders the newest entries that fit in budget tokens, newest first.
// A budget of zero or less yields an empty excerpt.
func Excerpt(entries []Entry, budget int, count Counter) string {
	if budget <= 0 || len(entries) == 0 {
		return ""
	}

	sorted := newestFirst(entries)
	var b strings.Builder
	used := 0
	for _, e := range sorted {
		line := fmt.Sprintf("- %s [%s] %s", e.Timestamp.UTC().Format("2006-01-02"), e.Category, e.Summary)
		if len(e.Paths) > 0 {
			line += " (" + strings.Join(e.Paths, ", ") + ")"
		}
		line += "\n"

		n := count(line)
		if used+n > budget {
			break
		}
		used += n
		b.WriteString(line)
	}
	return b.String()
}

// RenderMarkdown renders entries in Keep a Changelog layout, one section per day
func RenderMarkdown(repo types.Repo, entries []Entry) string {
	var b strings.Builder
	b.WriteString("# Changelog\n\n")
	if !repo.IsZero() {
		fmt.Fprintf(&b, "Changes landed on %s by RepoSage.\n\n", repo)
	}
	if len(entries) == 0 {
		b.WriteString("_No changes recorded._\n")
		return b.String()
	}

	byDay := make(map[string][]Entry)
	var days []string
	for _, e := range newestFirst(entries) {
		day := e.Timestamp.UTC().Format("2006-01-02")
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], e)
	}

	for _, day := range days {
		fmt.Fprintf(&b, "## %s\n\n", day)
		for _, cat := range categoryOrder {
			var lines []string
			for _, e := range byDay[day] {
				if e.Category != cat {
					continue
				}
				line := "- " + e.Summary
				for _, p := range e.Paths {
					line += fmt.Sprintf(" `%s`", p)
				}
				if e.Ref != "" {
					line += " (" + e.Ref + ")"
				}
				lines = append(lines, line)
			}
			if len(lines) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", cat, strings.Join(lines, "\n"))
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func newestFirst(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
