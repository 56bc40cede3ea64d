package station

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FixtureRepository serves the catalog from a YAML file, for local
// development and tests where no content database is available.
type FixtureRepository struct {
	stations   map[string]*Station
	checklists map[string]*Checklist
}

type fixtureFile struct {
	Stations   []Station   `yaml:"stations"`
	Checklists []Checklist `yaml:"checklists"`
}

// LoadFixtureRepository parses a YAML catalog file.
func LoadFixtureRepository(path string) (*FixtureRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture builds a repository from raw YAML.
func ParseFixture(data []byte) (*FixtureRepository, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse station fixture: %w", err)
	}

	repo := &FixtureRepository{
		stations:   make(map[string]*Station, len(file.Stations)),
		checklists: make(map[string]*Checklist, len(file.Checklists)),
	}
	for i := range file.Stations {
		s := file.Stations[i]
		if s.ID == "" {
			return nil, fmt.Errorf("station fixture entry %d has no id", i)
		}
		repo.stations[s.ID] = &s
	}
	for i := range file.Checklists {
		c := file.Checklists[i]
		if c.ID == "" {
			return nil, fmt.Errorf("checklist fixture entry %d has no id", i)
		}
		repo.checklists[c.ID] = &c
	}
	return repo, nil
}

// GetStation implements Repository.
func (r *FixtureRepository) GetStation(ctx context.Context, id string) (*Station, error) {
	s, ok := r.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetChecklist implements Repository.
func (r *FixtureRepository) GetChecklist(ctx context.Context, id string) (*Checklist, error) {
	c, ok := r.checklists[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}
