package pgshipments

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS vessels (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  imo_number TEXT NULL,
  mmsi TEXT NULL,
  current_latitude DOUBLE PRECISION NULL,
  current_longitude DOUBLE PRECISION NULL,
  current_speed DOUBLE PRECISION NULL,
  current_heading DOUBLE PRECISION NULL,
  last_position_update TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_vessels_imo_number ON vessels(imo_number) WHERE imo_number IS NOT NULL`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  container_number TEXT NOT NULL,
  bl_number TEXT NOT NULL DEFAULT '',
  carrier_id BIGINT NULL,
  supplier_id BIGINT NULL,
  vessel_id BIGINT NULL REFERENCES vessels(id),
  origin_port_id BIGINT NULL,
  destination_port_id BIGINT NULL,
  etd_original TIMESTAMPTZ NULL,
  etd_actual TIMESTAMPTZ NULL,
  eta_original TIMESTAMPTZ NULL,
  eta_current TIMESTAMPTZ NULL,
  ata TIMESTAMPTZ NULL,
  status TEXT NOT NULL,
  tracking_status TEXT NULL,
  current_location TEXT NULL,
  last_tracking_update TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (container_number)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_eta_current ON shipments(eta_current)`,
		`
CREATE TABLE IF NOT EXISTS alerts (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  alert_type TEXT NOT NULL,
  severity TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  is_read BOOLEAN NOT NULL DEFAULT FALSE,
  is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_shipment_id_created_at ON alerts(shipment_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
