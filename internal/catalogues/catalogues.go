// Package catalogues persists named scenario sets as YAML files under the
// data directory.
package catalogues

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/scenario"
)

// timeFormat sorts lexically in time order
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Catalogue is a saved set of scenarios
type Catalogue struct {
	ID          string              `json:"id" yaml:"id"`
	Title       string              `json:"title" yaml:"title"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Scenarios   []scenario.Scenario `json:"scenarios" yaml:"scenarios"`
	CreatedAt   string              `json:"created_at" yaml:"created_at"`
	UpdatedAt   string              `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the title and every scenario
func (c *Catalogue) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: catalogue title is required", apperr.ErrInvalidInput)
	}
	if len(c.Scenarios) == 0 {
		return fmt.Errorf("%w: catalogue %q has no scenarios", apperr.ErrInvalidInput, c.Title)
	}
	seen := make(map[string]bool, len(c.Scenarios))
	for _, s := range c.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("%w: scenario name is required", apperr.ErrInvalidInput)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate scenario %q", apperr.ErrInvalidInput, s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Store handles catalogue persistence
type Store struct {
	dir string
}

// NewStore creates a catalogue store in <dataDir>/catalogues
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "catalogues")

	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalogues directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// List returns all catalogues sorted by creation date (newest first)
func (s *Store) List() ([]*Catalogue, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogues directory: %w", err)
	}

	catalogues := []*Catalogue{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		c, err := s.load(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		catalogues = append(catalogues, c)
	}

	sort.SliceStable(catalogues, func(i, j int) bool {
		return catalogues[i].CreatedAt > catalogues[j].CreatedAt
	})
	return catalogues, nil
}

// Get retrieves a catalogue by ID
func (s *Store) Get(id string) (*Catalogue, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return s.load(path)
}

// Create validates and saves a new catalogue
func (s *Store) Create(c *Catalogue) (*Catalogue, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ID = uuid.New().String()
	now := time.Now().UTC().Format(timeFormat)
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.save(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the title, description or scenarios of a catalogue.
// Empty fields in updates are left unchanged.
func (s *Store) Update(id string, updates *Catalogue) (*Catalogue, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if updates.Title != "" {
		c.Title = updates.Title
	}
	if updates.Description != "" {
		c.Description = updates.Description
	}
	if updates.Scenarios != nil {
		c.Scenarios = updates.Scenarios
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC().Format(timeFormat)

	if err := s.save(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a catalogue
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: catalogue %s", apperr.ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete catalogue: %w", err)
	}
	return nil
}

// path maps an ID onto its file; only UUIDs are accepted
func (s *Store) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: catalogue %s", apperr.ErrNotFound, id)
	}
	return filepath.Join(s.dir, id+".yaml"), nil
}

func (s *Store) load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: catalogue %s", apperr.ErrNotFound, strings.TrimSuffix(filepath.Base(path), ".yaml"))
		}
		return nil, fmt.Errorf("failed to read catalogue file: %w", err)
	}

	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}
	return &c, nil
}

func (s *Store) save(c *Catalogue) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal catalogue: %w", err)
	}

	path := filepath.Join(s.dir, c.ID+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalogue file: %w", err)
	}
	return nil
}
