package postgres

import (
	"context"
	"fmt"

	"gymkana-live-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader loads challenge catalogs from Postgres. It backs the
// cached catalogs in the memory and redis packages.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadChallenges(ctx context.Context, eventID string) ([]domain.Challenge, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, event_id, title, description, type, points, "order", location_lat, location_lng, created_at
		 FROM challenges WHERE event_id = $1
		 ORDER BY "order", id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	defer rows.Close()

	challenges := make([]domain.Challenge, 0)
	for rows.Next() {
		var challenge domain.Challenge
		var mediaType string
		if err := rows.Scan(&challenge.ID, &challenge.EventID, &challenge.Title, &challenge.Description,
			&mediaType, &challenge.Points, &challenge.Order, &challenge.LocationLat, &challenge.LocationLng, &challenge.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenge.Type = domain.MediaType(mediaType)
		challenges = append(challenges, challenge)
	}
	return challenges, rows.Err()
}
