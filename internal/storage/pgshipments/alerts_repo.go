package pgshipments

import (
	"context"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) CreateAlert(ctx context.Context, in models.AlertInput) (*models.Alert, error) {
	now := time.Now().UTC()

	var a models.Alert
	err := s.db.QueryRow(ctx, `
INSERT INTO alerts (shipment_id, alert_type, severity, title, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, shipment_id, alert_type, severity, title, message, is_read, is_resolved, created_at
`, in.ShipmentID, in.AlertType, in.Severity, in.Title, in.Message, now).Scan(
		&a.ID, &a.ShipmentID, &a.AlertType, &a.Severity, &a.Title, &a.Message,
		&a.IsRead, &a.IsResolved, &a.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert alert")
	}
	return &a, nil
}

func (s *Storage) RecentAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, alert_type, severity, title, message, is_read, is_resolved, created_at
FROM alerts
ORDER BY created_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select recent alerts")
	}
	defer rows.Close()

	out := make([]*models.Alert, 0, limit)
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(
			&a.ID, &a.ShipmentID, &a.AlertType, &a.Severity, &a.Title, &a.Message,
			&a.IsRead, &a.IsResolved, &a.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		out = append(out, &a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) AlertsByShipment(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, alert_type, severity, title, message, is_read, is_resolved, created_at
FROM alerts
WHERE shipment_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select shipment alerts")
	}
	defer rows.Close()

	out := make([]*models.Alert, 0, limit)
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(
			&a.ID, &a.ShipmentID, &a.AlertType, &a.Severity, &a.Title, &a.Message,
			&a.IsRead, &a.IsResolved, &a.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		out = append(out, &a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) MarkAlertRead(ctx context.Context, alertID uint64) error {
	ct, err := s.db.Exec(ctx, `UPDATE alerts SET is_read = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return errors.Wrap(err, "mark alert read")
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
