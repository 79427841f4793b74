package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/broker/messages"
	"github.com/IndustriasCannon/shipwatch/internal/cache"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
	"github.com/IndustriasCannon/shipwatch/internal/models"
	"github.com/IndustriasCannon/shipwatch/internal/reconcile"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PositionsCacheKey — под этим ключом лежат последние нормализованные
// позиции судов ([]provider.VesselPosition в JSON).
const PositionsCacheKey = "vessels:positions"

type Repository interface {
	ShipmentsByStatus(ctx context.Context, status string, limit int) ([]*models.Shipment, error)
	ShipmentByID(ctx context.Context, id uint64) (*models.Shipment, error)
	SearchShipments(ctx context.Context, query string) ([]*models.Shipment, error)
	UpdateShipment(ctx context.Context, id uint64, upd models.ShipmentUpdate) (*models.Shipment, error)
	CreateAlert(ctx context.Context, in models.AlertInput) (*models.Alert, error)
	VesselsWithIMO(ctx context.Context) ([]*models.Vessel, error)
	UpdateVesselPosition(ctx context.Context, vesselID uint64, upd models.VesselPositionUpdate, at time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Syncer — оркестратор: режет контейнеры на чанки провайдера, гоняет их
// через клиент и применяет решения движка сверки через хранилище.
type Syncer struct {
	repo     Repository
	provider provider.Client
	producer Producer // optional

	alertsTopic    string
	shipmentsTopic string

	chunkSize int
	syncLimit int

	posCache cache.BytesCache // optional
	posTTL   time.Duration

	now func() time.Time
}

func New(repo Repository, p provider.Client, producer Producer, alertsTopic, shipmentsTopic string) *Syncer {
	return &Syncer{
		repo:           repo,
		provider:       p,
		producer:       producer,
		alertsTopic:    alertsTopic,
		shipmentsTopic: shipmentsTopic,
		chunkSize:      50,
		syncLimit:      100,
		posTTL:         10 * time.Minute,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Syncer) WithSettings(chunkSize, syncLimit int) *Syncer {
	if chunkSize > 0 {
		s.chunkSize = chunkSize
	}
	if syncLimit > 0 {
		s.syncLimit = syncLimit
	}
	return s
}

func (s *Syncer) WithPositionsCache(c cache.BytesCache, ttl time.Duration) *Syncer {
	s.posCache = c
	if ttl > 0 {
		s.posTTL = ttl
	}
	return s
}

func (s *Syncer) WithNow(fn func() time.Time) *Syncer {
	if fn != nil {
		s.now = fn
	}
	return s
}

type SyncReport struct {
	RunID        string `json:"runId"`
	Total        int    `json:"total"`
	Processed    int    `json:"processed"`
	Errors       int    `json:"errors"`
	AlertsRaised int    `json:"alertsRaised"`
}

// SyncInTransit прогоняет все in-transit отправки через провайдера.
// Ошибка чанка изолирована: остальные чанки обрабатываются дальше, частичный
// прогресс не откатывается. Терминальная ошибка — только если провайдер не
// ответил ни на один чанк.
func (s *Syncer) SyncInTransit(ctx context.Context) (SyncReport, error) {
	report := SyncReport{RunID: uuid.NewString()}

	shipments, err := s.repo.ShipmentsByStatus(ctx, models.ShipmentStatusInTransit, s.syncLimit)
	if err != nil {
		return report, errors.Wrap(err, "load in-transit shipments")
	}
	report.Total = len(shipments)
	if len(shipments) == 0 {
		return report, nil
	}

	byContainer := make(map[string]*models.Shipment, len(shipments))
	containers := make([]string, 0, len(shipments))
	for _, sh := range shipments {
		byContainer[sh.ContainerNumber] = sh
		containers = append(containers, sh.ContainerNumber)
	}

	chunks := chunkStrings(containers, s.chunkSize)
	anyChunkOK := false
	var lastChunkErr error

	for i, chunk := range chunks {
		results, err := s.provider.TrackBatch(ctx, chunk)
		if err != nil {
			slog.Error("track batch chunk failed", "run_id", report.RunID, "chunk", i, "size", len(chunk), "error", err.Error())
			report.Errors += len(chunk)
			lastChunkErr = err
			continue
		}
		anyChunkOK = true

		for j := range results {
			tr := &results[j]
			sh, ok := byContainer[tr.ContainerNumber]
			if !ok {
				// Провайдер может отдавать контейнеры, которые мы не ведём.
				slog.Info("provider reported unknown container", "run_id", report.RunID, "container", tr.ContainerNumber)
				continue
			}
			_, raised, err := s.applyOne(ctx, sh, tr)
			if err != nil {
				slog.Error("apply tracking result", "run_id", report.RunID, "container", sh.ContainerNumber, "error", err.Error())
				report.Errors++
				continue
			}
			report.Processed++
			report.AlertsRaised += raised
		}
	}

	if !anyChunkOK {
		return report, errors.Wrap(lastChunkErr, "provider unreachable")
	}
	return report, nil
}

type TrackOneResult struct {
	Tracking     *provider.TrackingResult
	Shipment     *models.Shipment // nil, если контейнер не отслеживается локально
	AlertsRaised int
}

// TrackOne — ручной путь для одного контейнера. provider.ErrNotFound
// пробрасывается как есть: это отличимый негативный результат, не авария.
func (s *Syncer) TrackOne(ctx context.Context, containerNumber string) (*TrackOneResult, error) {
	tr, err := s.provider.TrackContainer(ctx, containerNumber)
	if err != nil {
		return nil, err
	}

	res := &TrackOneResult{Tracking: tr}

	shipments, err := s.repo.SearchShipments(ctx, containerNumber)
	if err != nil {
		return nil, errors.Wrap(err, "search shipments")
	}
	if len(shipments) == 0 {
		return res, nil
	}

	updated, raised, err := s.applyOne(ctx, shipments[0], tr)
	if err != nil {
		return nil, err
	}
	res.Shipment = updated
	res.AlertsRaised = raised
	return res, nil
}

// RefreshVesselPositions обновляет позиции судов, привязанных к отправкам,
// и кладёт нормализованный снимок в кэш для карты дашборда.
func (s *Syncer) RefreshVesselPositions(ctx context.Context) (int, error) {
	vessels, err := s.repo.VesselsWithIMO(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load vessels")
	}

	byIMO := make(map[string]*models.Vessel, len(vessels))
	imos := make([]string, 0, len(vessels))
	for _, v := range vessels {
		if v.IMONumber == nil || *v.IMONumber == "" {
			continue
		}
		byIMO[*v.IMONumber] = v
		imos = append(imos, *v.IMONumber)
	}
	if len(imos) == 0 {
		return 0, nil
	}

	positions, err := s.provider.VesselPositions(ctx, imos)
	if err != nil {
		return 0, errors.Wrap(err, "fetch vessel positions")
	}

	now := s.now()
	updated := 0
	for _, pos := range positions {
		v, ok := byIMO[pos.IMO]
		if !ok {
			continue
		}
		err := s.repo.UpdateVesselPosition(ctx, v.ID, models.VesselPositionUpdate{
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Speed:     pos.Speed,
			Heading:   pos.Heading,
		}, now)
		if err != nil {
			slog.Error("update vessel position", "imo", pos.IMO, "error", err.Error())
			continue
		}
		updated++
	}

	if s.posCache != nil {
		if b, err := json.Marshal(positions); err == nil {
			_ = s.posCache.Set(ctx, PositionsCacheKey, b, s.posTTL)
		}
	}
	return updated, nil
}

func (s *Syncer) applyOne(ctx context.Context, sh *models.Shipment, tr *provider.TrackingResult) (*models.Shipment, int, error) {
	out := reconcile.Reconcile(sh, tr, s.now())

	raised := 0
	for _, in := range out.Alerts {
		alert, err := s.repo.CreateAlert(ctx, in)
		if err != nil {
			return nil, raised, errors.Wrap(err, "create alert")
		}
		raised++
		s.publishAlert(ctx, sh, alert)
	}

	updated, err := s.repo.UpdateShipment(ctx, sh.ID, out.Updates)
	if err != nil {
		return nil, raised, errors.Wrap(err, "update shipment")
	}
	s.publishShipment(ctx, updated)
	return updated, raised, nil
}

// Публикации best-effort: соседний дашборд переживёт пропуск события,
// а вот валить из-за брокера обработку отправки нельзя.
func (s *Syncer) publishAlert(ctx context.Context, sh *models.Shipment, alert *models.Alert) {
	if s.producer == nil || s.alertsTopic == "" {
		return
	}
	msg := messages.AlertCreated{
		AlertID:         alert.ID,
		ShipmentID:      alert.ShipmentID,
		ContainerNumber: sh.ContainerNumber,
		AlertType:       alert.AlertType,
		Severity:        alert.Severity,
		Title:           alert.Title,
		Message:         alert.Message,
		CreatedAt:       alert.CreatedAt,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	key := []byte(fmt.Sprintf("%d", alert.ShipmentID))
	if err := s.producer.Publish(ctx, s.alertsTopic, key, b); err != nil {
		slog.Warn("publish alert event", "alert_id", alert.ID, "error", err.Error())
	}
}

func (s *Syncer) publishShipment(ctx context.Context, sh *models.Shipment) {
	if s.producer == nil || s.shipmentsTopic == "" || sh == nil {
		return
	}
	msg := messages.ShipmentUpdated{
		ShipmentID:      sh.ID,
		ContainerNumber: sh.ContainerNumber,
		Status:          sh.Status,
		TrackingStatus:  sh.TrackingStatus,
		CurrentLocation: sh.CurrentLocation,
		ETACurrent:      sh.ETACurrent,
		ATA:             sh.ATA,
		UpdatedAt:       sh.UpdatedAt,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	key := []byte(fmt.Sprintf("%d", sh.ID))
	if err := s.producer.Publish(ctx, s.shipmentsTopic, key, b); err != nil {
		slog.Warn("publish shipment event", "shipment_id", sh.ID, "error", err.Error())
	}
}

func chunkStrings(in []string, size int) [][]string {
	if size <= 0 {
		size = 50
	}
	var out [][]string
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	if len(in) > 0 {
		out = append(out, in)
	}
	return out
}
