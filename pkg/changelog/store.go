package changelog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/saint0x/reposage/pkg/types"
	"gopkg.in/yaml.v3"
)

type document struct {
	Repositories map[string][]Entry `yaml:"repositories"`
}

// FileStore keeps the changelog of every repository in one YAML file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the
// first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

// ReadAll returns the entries recorded for repo, oldest first
func (s *FileStore) ReadAll(ctx context.Context, repo types.Repo) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Repositories[repo.String()], nil
}

// Append adds entry to repo's changelog and rewrites the file atomically
func (s *FileStore) Append(ctx context.Context, repo types.Repo, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	key := repo.String()
	doc.Repositories[key] = append(doc.Repositories[key], entry)
	return s.save(doc)
}

func (s *FileStore) load() (*document, error) {
	doc := &document{Repositories: make(map[string][]Entry)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read changelog: %w", err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse changelog %s: %w", s.path, err)
	}
	if doc.Repositories == nil {
		doc.Repositories = make(map[string][]Entry)
	}
	return doc, nil
}

func (s *FileStore) save(doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode changelog: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create changelog directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".changelog-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write changelog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write changelog: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace changelog: %w", err)
	}
	return nil
}

// MemoryStore keeps entries in memory
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

// NewMemoryStore creates a store, optionally seeded with entries for repo
func NewMemoryStore(repo types.Repo, seed ...Entry) *MemoryStore {
	s := &MemoryStore{entries: make(map[string][]Entry)}
	if len(seed) > 0 {
		s.entries[repo.String()] = append([]Entry(nil), seed...)
	}
	return s
}

func (s *MemoryStore) ReadAll(ctx context.Context, repo types.Repo) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries[repo.String()]...), nil
}

func (s *MemoryStore) Append(ctx context.Context, repo types.Repo, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[repo.String()] = append(s.entries[repo.String()], entry)
	return nil
}

// Len returns the number of entries recorded for repo
func (s *MemoryStore) Len(repo types.Repo) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[repo.String()])
}
