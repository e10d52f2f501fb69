// Package types holds the data shared between pipeline stages and the
// interfaces of the two remote services the pipeline talks to.
package types

import (
	"fmt"
	"path"
	"strings"
)

// Repo identifies a repository on the host
type Repo struct {
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`
}

// ParseRepo parses "owner/name"
func ParseRepo(s string) (Repo, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, fmt.Errorf("invalid repository %q: want owner/name", s)
	}
	return Repo{Owner: parts[0], Name: parts[1]}, nil
}

// String returns owner/name
func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// IsZero reports whether the repo is unset
func (r Repo) IsZero() bool {
	return r.Owner == "" && r.Name == ""
}

// TreeEntry is a single blob listed from a ref
type TreeEntry struct {
	Path string
	Size int
}

// File is file content read at a ref. SHA is the blob SHA the host needs to
// accept an update of exactly this version.
type File struct {
	Path    string
	Content string
	SHA     string
}

// PullRequest identifies an opened pull request
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// CandidateFile is a file selected for analysis
type CandidateFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Size     int    `json:"size"`
}

// NewCandidate builds a candidate, deriving the language from the extension
func NewCandidate(p string, size int) CandidateFile {
	return CandidateFile{
		Path:     p,
		Language: LanguageFor(p),
		Size:     size,
	}
}

var languages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".html": "html",
	".css":  "css",
	".md":   "markdown",
	".yml":  "yaml",
	".yaml": "yaml",
}

// LanguageFor maps a path to a language name, falling back to the bare extension
func LanguageFor(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if lang, ok := languages[ext]; ok {
		return lang
	}
	return strings.TrimPrefix(ext, ".")
}
