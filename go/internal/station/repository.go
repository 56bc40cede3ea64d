package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned for unknown station or checklist ids.
var ErrNotFound = errors.New("station catalog entry not found")

// Repository is the read-only station/checklist catalog consumed at
// session creation.
type Repository interface {
	GetStation(ctx context.Context, id string) (*Station, error)
	GetChecklist(ctx context.Context, id string) (*Checklist, error)
}

// PostgresRepository reads the catalog from the content database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a catalog repository over a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetStation fetches a station definition and its material ids.
func (r *PostgresRepository) GetStation(ctx context.Context, id string) (*Station, error) {
	var s Station
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, brief FROM stations WHERE id = $1`, id,
	).Scan(&s.ID, &s.Title, &s.Brief)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get station %s: %w", id, err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM station_materials WHERE station_id = $1 ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get station %s materials: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var materialID string
		if err := rows.Scan(&materialID); err != nil {
			return nil, fmt.Errorf("scan station material: %w", err)
		}
		s.Materials = append(s.Materials, materialID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate station materials: %w", err)
	}

	return &s, nil
}

// GetChecklist fetches a checklist definition with its items.
func (r *PostgresRepository) GetChecklist(ctx context.Context, id string) (*Checklist, error) {
	var c Checklist
	err := r.pool.QueryRow(ctx,
		`SELECT id, title FROM checklists WHERE id = $1`, id,
	).Scan(&c.ID, &c.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checklist %s: %w", id, err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, label, max_score FROM checklist_items WHERE checklist_id = $1 ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get checklist %s items: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item ChecklistItem
		if err := rows.Scan(&item.ID, &item.Label, &item.MaxScore); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist items: %w", err)
	}

	return &c, nil
}
