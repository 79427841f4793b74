package pgshipments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  id, container_number, bl_number,
  carrier_id, supplier_id, vessel_id, origin_port_id, destination_port_id,
  etd_original, etd_actual, eta_original, eta_current, ata,
  status, tracking_status, current_location, last_tracking_update,
  created_at, updated_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	err := row.Scan(
		&sh.ID, &sh.ContainerNumber, &sh.BLNumber,
		&sh.CarrierID, &sh.SupplierID, &sh.VesselID, &sh.OriginPortID, &sh.DestinationPortID,
		&sh.ETDOriginal, &sh.ETDActual, &sh.ETAOriginal, &sh.ETACurrent, &sh.ATA,
		&sh.Status, &sh.TrackingStatus, &sh.CurrentLocation, &sh.LastTrackingUpdate,
		&sh.CreatedAt, &sh.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Storage) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  container_number, bl_number, vessel_id, etd_original, eta_original, eta_current,
  status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$5,$6,$7,$7)
ON CONFLICT (container_number)
DO UPDATE SET updated_at = shipments.updated_at
RETURNING `+shipmentColumns,
		in.ContainerNumber, in.BLNumber, in.VesselID, in.ETDOriginal, in.ETAOriginal,
		models.ShipmentStatusInTransit, now)

	sh, err := scanShipment(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert shipment")
	}
	return sh, nil
}

func (s *Storage) ShipmentByID(ctx context.Context, id uint64) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE id = $1`, id)
	sh, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

// ShipmentsByStatus отдаёт отправки в порядке давности последней проверки:
// давно не проверявшиеся идут первыми.
func (s *Storage) ShipmentsByStatus(ctx context.Context, status string, limit int) ([]*models.Shipment, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE status = $1
ORDER BY last_tracking_update ASC NULLS FIRST, id ASC
LIMIT $2
`, status, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments by status")
	}
	defer rows.Close()

	return collectShipments(rows)
}

func (s *Storage) SearchShipments(ctx context.Context, query string) ([]*models.Shipment, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE container_number ILIKE $1 OR bl_number ILIKE $1
ORDER BY id ASC
LIMIT 50
`, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "search shipments")
	}
	defer rows.Close()

	return collectShipments(rows)
}

// UpdateShipment применяет частичное обновление: собирает SET только из
// не-nil полей. Пустое обновление — no-op, но строку всё равно возвращаем.
func (s *Storage) UpdateShipment(ctx context.Context, id uint64, upd models.ShipmentUpdate) (*models.Shipment, error) {
	if upd.IsEmpty() {
		return s.ShipmentByID(ctx, id)
	}

	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.TrackingStatus != nil {
		add("tracking_status", *upd.TrackingStatus)
	}
	if upd.CurrentLocation != nil {
		add("current_location", *upd.CurrentLocation)
	}
	if upd.LastTrackingUpdate != nil {
		add("last_tracking_update", *upd.LastTrackingUpdate)
	}
	if upd.ETDActual != nil {
		add("etd_actual", *upd.ETDActual)
	}
	if upd.ETACurrent != nil {
		add("eta_current", *upd.ETACurrent)
	}
	if upd.ATA != nil {
		add("ata", *upd.ATA)
	}

	q := `UPDATE shipments SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING` + shipmentColumns
	sh, err := scanShipment(s.db.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update shipment")
	}
	return sh, nil
}

func collectShipments(rows pgx.Rows) ([]*models.Shipment, error) {
	out := make([]*models.Shipment, 0)
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
