package pgshipments

import (
	"context"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateOrGetVessel(ctx context.Context, name, imoNumber string) (*models.Vessel, error) {
	now := time.Now().UTC()

	var v models.Vessel
	err := s.db.QueryRow(ctx, `
INSERT INTO vessels (name, imo_number, created_at)
VALUES ($1, NULLIF($2, ''), $3)
ON CONFLICT (imo_number) WHERE imo_number IS NOT NULL
DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, imo_number, mmsi,
  current_latitude, current_longitude, current_speed, current_heading,
  last_position_update, created_at
`, name, imoNumber, now).Scan(
		&v.ID, &v.Name, &v.IMONumber, &v.MMSI,
		&v.CurrentLatitude, &v.CurrentLongitude, &v.CurrentSpeed, &v.CurrentHeading,
		&v.LastPositionUpdate, &v.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "upsert vessel")
	}
	return &v, nil
}

// VesselsWithIMO — только суда, которые можно спросить у провайдера позиций.
func (s *Storage) VesselsWithIMO(ctx context.Context) ([]*models.Vessel, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, name, imo_number, mmsi,
  current_latitude, current_longitude, current_speed, current_heading,
  last_position_update, created_at
FROM vessels
WHERE imo_number IS NOT NULL AND imo_number <> ''
ORDER BY id ASC
`)
	if err != nil {
		return nil, errors.Wrap(err, "select vessels")
	}
	defer rows.Close()

	out := make([]*models.Vessel, 0)
	for rows.Next() {
		var v models.Vessel
		if err := rows.Scan(
			&v.ID, &v.Name, &v.IMONumber, &v.MMSI,
			&v.CurrentLatitude, &v.CurrentLongitude, &v.CurrentSpeed, &v.CurrentHeading,
			&v.LastPositionUpdate, &v.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan vessel")
		}
		out = append(out, &v)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) VesselByID(ctx context.Context, id uint64) (*models.Vessel, error) {
	var v models.Vessel
	err := s.db.QueryRow(ctx, `
SELECT id, name, imo_number, mmsi,
  current_latitude, current_longitude, current_speed, current_heading,
  last_position_update, created_at
FROM vessels
WHERE id = $1
`, id).Scan(
		&v.ID, &v.Name, &v.IMONumber, &v.MMSI,
		&v.CurrentLatitude, &v.CurrentLongitude, &v.CurrentSpeed, &v.CurrentHeading,
		&v.LastPositionUpdate, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select vessel")
	}
	return &v, nil
}

func (s *Storage) UpdateVesselPosition(ctx context.Context, vesselID uint64, upd models.VesselPositionUpdate, at time.Time) error {
	ct, err := s.db.Exec(ctx, `
UPDATE vessels SET
  current_latitude = $2,
  current_longitude = $3,
  current_speed = $4,
  current_heading = $5,
  last_position_update = $6
WHERE id = $1
`, vesselID, upd.Latitude, upd.Longitude, upd.Speed, upd.Heading, at.UTC())
	if err != nil {
		return errors.Wrap(err, "update vessel position")
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
