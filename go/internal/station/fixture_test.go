package station

import (
	"context"
	"errors"
	"testing"
)

const fixtureYAML = `
stations:
  - id: chest-pain-01
    title: Acute chest pain
    brief: 55-year-old with sudden retrosternal pain.
    materials:
      - ecg-1
      - chest-xray-1
checklists:
  - id: chest-pain-01-pep
    title: Chest pain PEP
    items:
      - id: anamnesis
        label: Structured anamnesis
        max_score: 2
      - id: ecg-read
        label: Interprets the ECG
        max_score: 1
`

func TestParseFixture(t *testing.T) {
	repo, err := ParseFixture([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	ctx := context.Background()
	s, err := repo.GetStation(ctx, "chest-pain-01")
	if err != nil {
		t.Fatalf("get station: %v", err)
	}
	if s.Title != "Acute chest pain" || len(s.Materials) != 2 {
		t.Fatalf("unexpected station: %+v", s)
	}

	c, err := repo.GetChecklist(ctx, "chest-pain-01-pep")
	if err != nil {
		t.Fatalf("get checklist: %v", err)
	}
	if len(c.Items) != 2 || c.Items[1].ID != "ecg-read" || c.Items[0].MaxScore != 2 {
		t.Fatalf("unexpected checklist: %+v", c)
	}
}

func TestFixtureUnknownIDs(t *testing.T) {
	repo, err := ParseFixture([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	ctx := context.Background()
	if _, err := repo.GetStation(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetChecklist(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFixtureRejectsMissingIDs(t *testing.T) {
	if _, err := ParseFixture([]byte("stations:\n  - title: no id\n")); err == nil {
		t.Fatal("station without id must be rejected")
	}
}
