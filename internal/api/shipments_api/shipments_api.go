package shipments_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/cache"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
	"github.com/IndustriasCannon/shipwatch/internal/models"
	"github.com/IndustriasCannon/shipwatch/internal/ratelimit"
	"github.com/IndustriasCannon/shipwatch/internal/services/syncer"
	"github.com/IndustriasCannon/shipwatch/internal/storage/pgshipments"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// RecentAlertsCacheKey — JSON-массив последних алертов, который пополняет
// kafka-консюмер. API читает его без похода в pg.
const RecentAlertsCacheKey = "alerts:recent"

type SyncService interface {
	SyncInTransit(ctx context.Context) (syncer.SyncReport, error)
	TrackOne(ctx context.Context, containerNumber string) (*syncer.TrackOneResult, error)
}

type Repository interface {
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error)
	ShipmentByID(ctx context.Context, id uint64) (*models.Shipment, error)
	SearchShipments(ctx context.Context, query string) ([]*models.Shipment, error)
	RecentAlerts(ctx context.Context, limit int) ([]*models.Alert, error)
	AlertsByShipment(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.Alert, error)
	MarkAlertRead(ctx context.Context, alertID uint64) error
	VesselsWithIMO(ctx context.Context) ([]*models.Vessel, error)
}

type ShipmentsAPI struct {
	svc     SyncService
	repo    Repository
	cache   cache.BytesCache   // optional
	limiter *ratelimit.Limiter // optional, для /stats

	recentAlertsLimit int
}

func New(svc SyncService, repo Repository) *ShipmentsAPI {
	return &ShipmentsAPI{svc: svc, repo: repo, recentAlertsLimit: 20}
}

func (a *ShipmentsAPI) WithCache(c cache.BytesCache) *ShipmentsAPI {
	a.cache = c
	return a
}

func (a *ShipmentsAPI) WithLimiter(l *ratelimit.Limiter) *ShipmentsAPI {
	a.limiter = l
	return a
}

func (a *ShipmentsAPI) WithRecentAlertsLimit(n int) *ShipmentsAPI {
	if n > 0 {
		a.recentAlertsLimit = n
	}
	return a
}

func (a *ShipmentsAPI) Routes(r chi.Router) {
	r.Post("/api/shipments", a.createShipment)
	r.Get("/api/shipments", a.searchShipments)
	r.Get("/api/shipments/{id}", a.getShipment)
	r.Get("/api/shipments/{id}/alerts", a.shipmentAlerts)

	r.Post("/api/tracking/sync", a.syncAll)
	r.Get("/api/tracking/container/{container}", a.trackContainer)
	r.Post("/api/tracking/update", a.updateOne)

	r.Get("/api/alerts/recent", a.recentAlerts)
	r.Post("/api/alerts/{id}/read", a.markAlertRead)

	r.Get("/api/vessels/positions", a.vesselPositions)

	r.Get("/stats", a.stats)
}

type shipmentDTO struct {
	ID                 uint64     `json:"id"`
	ContainerNumber    string     `json:"containerNumber"`
	BLNumber           string     `json:"blNumber,omitempty"`
	VesselID           *uint64    `json:"vesselId,omitempty"`
	ETDOriginal        *time.Time `json:"etdOriginal,omitempty"`
	ETDActual          *time.Time `json:"etdActual,omitempty"`
	ETAOriginal        *time.Time `json:"etaOriginal,omitempty"`
	ETACurrent         *time.Time `json:"etaCurrent,omitempty"`
	ATA                *time.Time `json:"ata,omitempty"`
	Status             string     `json:"status"`
	TrackingStatus     *string    `json:"trackingStatus,omitempty"`
	CurrentLocation    *string    `json:"currentLocation,omitempty"`
	LastTrackingUpdate *time.Time `json:"lastTrackingUpdate,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func toShipmentDTO(sh *models.Shipment) shipmentDTO {
	return shipmentDTO{
		ID:                 sh.ID,
		ContainerNumber:    sh.ContainerNumber,
		BLNumber:           sh.BLNumber,
		VesselID:           sh.VesselID,
		ETDOriginal:        sh.ETDOriginal,
		ETDActual:          sh.ETDActual,
		ETAOriginal:        sh.ETAOriginal,
		ETACurrent:         sh.ETACurrent,
		ATA:                sh.ATA,
		Status:             sh.Status,
		TrackingStatus:     sh.TrackingStatus,
		CurrentLocation:    sh.CurrentLocation,
		LastTrackingUpdate: sh.LastTrackingUpdate,
		CreatedAt:          sh.CreatedAt,
		UpdatedAt:          sh.UpdatedAt,
	}
}

type alertDTO struct {
	ID         uint64    `json:"id"`
	ShipmentID uint64    `json:"shipmentId"`
	AlertType  string    `json:"alertType"`
	Severity   string    `json:"severity"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"isRead"`
	IsResolved bool      `json:"isResolved"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toAlertDTOs(alerts []*models.Alert) []alertDTO {
	out := make([]alertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertDTO{
			ID:         a.ID,
			ShipmentID: a.ShipmentID,
			AlertType:  a.AlertType,
			Severity:   a.Severity,
			Title:      a.Title,
			Message:    a.Message,
			IsRead:     a.IsRead,
			IsResolved: a.IsResolved,
			CreatedAt:  a.CreatedAt,
		})
	}
	return out
}

type createShipmentRequest struct {
	ContainerNumber string     `json:"containerNumber"`
	BLNumber        string     `json:"blNumber"`
	VesselID        *uint64    `json:"vesselId"`
	ETDOriginal     *time.Time `json:"etdOriginal"`
	ETAOriginal     *time.Time `json:"etaOriginal"`
}

func (a *ShipmentsAPI) createShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ContainerNumber == "" {
		writeError(w, http.StatusBadRequest, "containerNumber is required")
		return
	}

	sh, err := a.repo.CreateShipment(r.Context(), models.ShipmentCreateInput{
		ContainerNumber: req.ContainerNumber,
		BLNumber:        req.BLNumber,
		VesselID:        req.VesselID,
		ETDOriginal:     req.ETDOriginal,
		ETAOriginal:     req.ETAOriginal,
	})
	if err != nil {
		a.writeInternal(w, "create shipment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentDTO(sh))
}

func (a *ShipmentsAPI) getShipment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	sh, err := a.repo.ShipmentByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgshipments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "shipment not found")
			return
		}
		a.writeInternal(w, "get shipment", err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentDTO(sh))
}

func (a *ShipmentsAPI) searchShipments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	if q == "" {
		writeError(w, http.StatusBadRequest, "query param is required")
		return
	}
	shipments, err := a.repo.SearchShipments(r.Context(), q)
	if err != nil {
		a.writeInternal(w, "search shipments", err)
		return
	}
	out := make([]shipmentDTO, 0, len(shipments))
	for _, sh := range shipments {
		out = append(out, toShipmentDTO(sh))
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": out})
}

func (a *ShipmentsAPI) shipmentAlerts(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	alerts, err := a.repo.AlertsByShipment(r.Context(), id, limit, offset)
	if err != nil {
		a.writeInternal(w, "list shipment alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": toAlertDTOs(alerts)})
}

func (a *ShipmentsAPI) syncAll(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.SyncInTransit(r.Context())
	if err != nil {
		slog.Error("manual sync failed", "run_id", report.RunID, "error", err.Error())
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  "provider unreachable",
			"report": report,
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type trackingStatusDTO struct {
	Code        string     `json:"code"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

type trackingEventDTO struct {
	EventType   string    `json:"eventType"`
	EventName   string    `json:"eventName,omitempty"`
	Location    string    `json:"location,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	IsEstimated bool      `json:"isEstimated"`
}

type trackingDTO struct {
	ContainerNumber string             `json:"containerNumber"`
	Status          trackingStatusDTO  `json:"status"`
	ETD             *time.Time         `json:"etd,omitempty"`
	ETA             *time.Time         `json:"eta,omitempty"`
	ATD             *time.Time         `json:"atd,omitempty"`
	ATA             *time.Time         `json:"ata,omitempty"`
	Events          []trackingEventDTO `json:"events,omitempty"`
	VesselName      string             `json:"vesselName,omitempty"`
	VesselIMO       string             `json:"vesselImo,omitempty"`
}

func toTrackingDTO(tr *provider.TrackingResult) trackingDTO {
	out := trackingDTO{
		ContainerNumber: tr.ContainerNumber,
		Status: trackingStatusDTO{
			Code:        tr.Status.Code,
			Description: tr.Status.Description,
			Location:    tr.Status.Location,
			Timestamp:   tr.Status.Timestamp,
		},
		ETD: tr.Schedule.ETD,
		ETA: tr.Schedule.ETA,
		ATD: tr.Schedule.ATD,
		ATA: tr.Schedule.ATA,
	}
	for _, e := range tr.Events {
		out.Events = append(out.Events, trackingEventDTO{
			EventType:   e.EventType,
			EventName:   e.EventName,
			Location:    e.Location,
			Timestamp:   e.Timestamp,
			IsEstimated: e.IsEstimated,
		})
	}
	if tr.Vessel != nil {
		out.VesselName = tr.Vessel.Name
		out.VesselIMO = tr.Vessel.IMO
	}
	return out
}

func (a *ShipmentsAPI) trackContainer(w http.ResponseWriter, r *http.Request) {
	container := chi.URLParam(r, "container")
	if container == "" {
		writeError(w, http.StatusBadRequest, "container number is required")
		return
	}

	res, err := a.svc.TrackOne(r.Context(), container)
	if err != nil {
		a.writeTrackingError(w, container, err)
		return
	}
	a.writeTrackOneResult(w, res)
}

type updateOneRequest struct {
	ShipmentID uint64 `json:"shipmentId"`
}

// updateOne — ручное обновление трекинга конкретной отправки из дашборда.
func (a *ShipmentsAPI) updateOne(w http.ResponseWriter, r *http.Request) {
	var req updateOneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ShipmentID == 0 {
		writeError(w, http.StatusBadRequest, "shipmentId is required")
		return
	}

	sh, err := a.repo.ShipmentByID(r.Context(), req.ShipmentID)
	if err != nil {
		if errors.Is(err, pgshipments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "shipment not found")
			return
		}
		a.writeInternal(w, "get shipment", err)
		return
	}

	res, err := a.svc.TrackOne(r.Context(), sh.ContainerNumber)
	if err != nil {
		a.writeTrackingError(w, sh.ContainerNumber, err)
		return
	}
	a.writeTrackOneResult(w, res)
}

func (a *ShipmentsAPI) writeTrackOneResult(w http.ResponseWriter, res *syncer.TrackOneResult) {
	out := map[string]any{
		"tracking":     toTrackingDTO(res.Tracking),
		"alertsRaised": res.AlertsRaised,
	}
	if res.Shipment != nil {
		out["shipment"] = toShipmentDTO(res.Shipment)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ShipmentsAPI) writeTrackingError(w http.ResponseWriter, container string, err error) {
	if errors.Is(err, provider.ErrNotFound) {
		writeError(w, http.StatusNotFound, "container not found: "+container)
		return
	}
	var ferr *provider.FetchError
	if errors.As(err, &ferr) {
		slog.Error("provider error", "container", container, "status", ferr.Status)
		writeError(w, http.StatusBadGateway, "tracking provider error")
		return
	}
	a.writeInternal(w, "track container", err)
}

func (a *ShipmentsAPI) recentAlerts(w http.ResponseWriter, r *http.Request) {
	// Сначала redis-лента от консюмера, потом pg как fallback.
	if a.cache != nil {
		if b, ok, err := a.cache.Get(r.Context(), RecentAlertsCacheKey); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(b)
			return
		}
	}

	alerts, err := a.repo.RecentAlerts(r.Context(), a.recentAlertsLimit)
	if err != nil {
		a.writeInternal(w, "recent alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": toAlertDTOs(alerts)})
}

func (a *ShipmentsAPI) markAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	if err := a.repo.MarkAlertRead(r.Context(), id); err != nil {
		if errors.Is(err, pgshipments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		a.writeInternal(w, "mark alert read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}

type vesselDTO struct {
	ID                 uint64     `json:"id"`
	Name               string     `json:"name"`
	IMONumber          string     `json:"imoNumber,omitempty"`
	Latitude           *float64   `json:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty"`
	Speed              *float64   `json:"speed,omitempty"`
	Heading            *float64   `json:"heading,omitempty"`
	LastPositionUpdate *time.Time `json:"lastPositionUpdate,omitempty"`
}

func (a *ShipmentsAPI) vesselPositions(w http.ResponseWriter, r *http.Request) {
	// Снимок провайдера из кэша свежее того, что успело доехать до pg.
	if a.cache != nil {
		if b, ok, err := a.cache.Get(r.Context(), syncer.PositionsCacheKey); err == nil && ok {
			var positions []provider.VesselPosition
			if err := json.Unmarshal(b, &positions); err == nil {
				writeJSON(w, http.StatusOK, map[string]any{"positions": positions, "source": "cache"})
				return
			}
		}
	}

	vessels, err := a.repo.VesselsWithIMO(r.Context())
	if err != nil {
		a.writeInternal(w, "vessel positions", err)
		return
	}
	out := make([]vesselDTO, 0, len(vessels))
	for _, v := range vessels {
		dto := vesselDTO{
			ID:                 v.ID,
			Name:               v.Name,
			Latitude:           v.CurrentLatitude,
			Longitude:          v.CurrentLongitude,
			Speed:              v.CurrentSpeed,
			Heading:            v.CurrentHeading,
			LastPositionUpdate: v.LastPositionUpdate,
		}
		if v.IMONumber != nil {
			dto.IMONumber = *v.IMONumber
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"vessels": out, "source": "db"})
}

func (a *ShipmentsAPI) stats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	if a.limiter != nil {
		out["providerRateLimit"] = a.limiter.Usage()
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ShipmentsAPI) writeInternal(w http.ResponseWriter, op string, err error) {
	slog.Error(op, "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
