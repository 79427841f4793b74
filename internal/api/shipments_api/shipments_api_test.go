package shipments_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
	"github.com/IndustriasCannon/shipwatch/internal/models"
	"github.com/IndustriasCannon/shipwatch/internal/services/syncer"
	"github.com/IndustriasCannon/shipwatch/internal/storage/pgshipments"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncService struct {
	trackOneResult *syncer.TrackOneResult
	trackOneErr    error
	report         syncer.SyncReport
	syncErr        error
}

func (f *fakeSyncService) SyncInTransit(_ context.Context) (syncer.SyncReport, error) {
	return f.report, f.syncErr
}

func (f *fakeSyncService) TrackOne(_ context.Context, _ string) (*syncer.TrackOneResult, error) {
	if f.trackOneErr != nil {
		return nil, f.trackOneErr
	}
	return f.trackOneResult, nil
}

type fakeRepo struct {
	shipments map[uint64]*models.Shipment
	alerts    []*models.Alert
	vessels   []*models.Vessel
	readIDs   []uint64
}

func (r *fakeRepo) CreateShipment(_ context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	sh := &models.Shipment{
		ID:              uint64(len(r.shipments) + 1),
		ContainerNumber: in.ContainerNumber,
		BLNumber:        in.BLNumber,
		Status:          models.ShipmentStatusInTransit,
	}
	if r.shipments == nil {
		r.shipments = map[uint64]*models.Shipment{}
	}
	r.shipments[sh.ID] = sh
	return sh, nil
}

func (r *fakeRepo) ShipmentByID(_ context.Context, id uint64) (*models.Shipment, error) {
	sh, ok := r.shipments[id]
	if !ok {
		return nil, pgshipments.ErrNotFound
	}
	return sh, nil
}

func (r *fakeRepo) SearchShipments(_ context.Context, query string) ([]*models.Shipment, error) {
	var out []*models.Shipment
	for _, sh := range r.shipments {
		if strings.Contains(strings.ToLower(sh.ContainerNumber), strings.ToLower(query)) {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (r *fakeRepo) RecentAlerts(_ context.Context, limit int) ([]*models.Alert, error) {
	if len(r.alerts) > limit {
		return r.alerts[:limit], nil
	}
	return r.alerts, nil
}

func (r *fakeRepo) AlertsByShipment(_ context.Context, shipmentID uint64, _, _ int) ([]*models.Alert, error) {
	var out []*models.Alert
	for _, a := range r.alerts {
		if a.ShipmentID == shipmentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkAlertRead(_ context.Context, alertID uint64) error {
	for _, a := range r.alerts {
		if a.ID == alertID {
			r.readIDs = append(r.readIDs, alertID)
			return nil
		}
	}
	return pgshipments.ErrNotFound
}

func (r *fakeRepo) VesselsWithIMO(_ context.Context) ([]*models.Vessel, error) {
	return r.vessels, nil
}

type fakeCache struct {
	data map[string][]byte
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := c.data[key]
	return b, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	return nil
}

func newTestServer(svc SyncService, repo Repository, opts ...func(*ShipmentsAPI)) *httptest.Server {
	api := New(svc, repo)
	for _, o := range opts {
		o(api)
	}
	r := chi.NewRouter()
	api.Routes(r)
	return httptest.NewServer(r)
}

func TestTrackContainer_NotFoundIs404(t *testing.T) {
	svc := &fakeSyncService{trackOneErr: provider.ErrNotFound}
	srv := newTestServer(svc, &fakeRepo{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tracking/container/MSKU0000000")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrackContainer_ProviderErrorIs502(t *testing.T) {
	svc := &fakeSyncService{trackOneErr: &provider.FetchError{Status: 500, Body: "boom"}}
	srv := newTestServer(svc, &fakeRepo{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tracking/container/MSKU0000000")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestTrackContainer_OK(t *testing.T) {
	eta := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	svc := &fakeSyncService{trackOneResult: &syncer.TrackOneResult{
		Tracking: &provider.TrackingResult{
			ContainerNumber: "MSKU1234567",
			Status:          provider.StatusInfo{Code: "SAILING", Description: "Sailing", Location: "Pacific"},
			Schedule:        provider.Schedule{ETA: &eta},
			Vessel:          &provider.VesselRef{Name: "EVER GIVEN", IMO: "9811000"},
		},
		Shipment:     &models.Shipment{ID: 7, ContainerNumber: "MSKU1234567", Status: models.ShipmentStatusInTransit},
		AlertsRaised: 1,
	}}
	srv := newTestServer(svc, &fakeRepo{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tracking/container/MSKU1234567")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Tracking     trackingDTO `json:"tracking"`
		Shipment     shipmentDTO `json:"shipment"`
		AlertsRaised int         `json:"alertsRaised"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "MSKU1234567", body.Tracking.ContainerNumber)
	assert.Equal(t, "SAILING", body.Tracking.Status.Code)
	assert.Equal(t, "9811000", body.Tracking.VesselIMO)
	assert.Equal(t, uint64(7), body.Shipment.ID)
	assert.Equal(t, 1, body.AlertsRaised)
}

func TestSyncAll_ReturnsReport(t *testing.T) {
	svc := &fakeSyncService{report: syncer.SyncReport{RunID: "abc", Total: 10, Processed: 9, Errors: 1, AlertsRaised: 3}}
	srv := newTestServer(svc, &fakeRepo{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/tracking/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report syncer.SyncReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "abc", report.RunID)
	assert.Equal(t, 9, report.Processed)
}

func TestSyncAll_ProviderDownIs502(t *testing.T) {
	svc := &fakeSyncService{syncErr: errors.New("provider unreachable")}
	srv := newTestServer(svc, &fakeRepo{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/tracking/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestUpdateOne_ByShipmentID(t *testing.T) {
	repo := &fakeRepo{shipments: map[uint64]*models.Shipment{
		5: {ID: 5, ContainerNumber: "TCLU7777777", Status: models.ShipmentStatusInTransit},
	}}
	svc := &fakeSyncService{trackOneResult: &syncer.TrackOneResult{
		Tracking: &provider.TrackingResult{ContainerNumber: "TCLU7777777"},
		Shipment: repo.shipments[5],
	}}
	srv := newTestServer(svc, repo)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/tracking/update", "application/json", strings.NewReader(`{"shipmentId":5}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/tracking/update", "application/json", strings.NewReader(`{"shipmentId":99}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/tracking/update", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAndGetShipment(t *testing.T) {
	repo := &fakeRepo{}
	srv := newTestServer(&fakeSyncService{}, repo)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/shipments", "application/json",
		strings.NewReader(`{"containerNumber":"MSKU1234567","blNumber":"BL-9"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created shipmentDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "MSKU1234567", created.ContainerNumber)

	resp, err = http.Get(srv.URL + "/api/shipments/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/shipments/42")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Пустой containerNumber отбрасываем до похода в репозиторий.
	resp, err = http.Post(srv.URL+"/api/shipments", "application/json", strings.NewReader(`{"blNumber":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecentAlerts_CacheFirstThenDB(t *testing.T) {
	repo := &fakeRepo{alerts: []*models.Alert{
		{ID: 1, ShipmentID: 2, AlertType: models.AlertTypeDelay, Severity: models.SeverityHigh, Title: "Delay Detected"},
	}}
	c := &fakeCache{data: map[string][]byte{
		RecentAlertsCacheKey: []byte(`{"alerts":[{"id":99}]}`),
	}}
	srv := newTestServer(&fakeSyncService{}, repo, func(a *ShipmentsAPI) { a.WithCache(c) })
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/alerts/recent")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fromCache struct {
		Alerts []struct {
			ID uint64 `json:"id"`
		} `json:"alerts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fromCache))
	require.Len(t, fromCache.Alerts, 1)
	assert.Equal(t, uint64(99), fromCache.Alerts[0].ID)

	// Без кэша — ответ из pg.
	srvNoCache := newTestServer(&fakeSyncService{}, repo)
	defer srvNoCache.Close()

	resp, err = http.Get(srvNoCache.URL + "/api/alerts/recent")
	require.NoError(t, err)
	defer resp.Body.Close()

	var fromDB struct {
		Alerts []alertDTO `json:"alerts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fromDB))
	require.Len(t, fromDB.Alerts, 1)
	assert.Equal(t, "Delay Detected", fromDB.Alerts[0].Title)
}

func TestMarkAlertRead(t *testing.T) {
	repo := &fakeRepo{alerts: []*models.Alert{{ID: 3, ShipmentID: 1}}}
	srv := newTestServer(&fakeSyncService{}, repo)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/alerts/3/read", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []uint64{3}, repo.readIDs)

	resp, err = http.Post(srv.URL+"/api/alerts/77/read", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVesselPositions_CacheThenDBFallback(t *testing.T) {
	lat, lon := 30.01, 32.58
	imo := "9811000"
	repo := &fakeRepo{vessels: []*models.Vessel{
		{ID: 1, Name: "EVER GIVEN", IMONumber: &imo, CurrentLatitude: &lat, CurrentLongitude: &lon},
	}}

	snapshot, _ := json.Marshal([]provider.VesselPosition{{IMO: imo, Latitude: lat, Longitude: lon}})
	c := &fakeCache{data: map[string][]byte{syncer.PositionsCacheKey: snapshot}}

	srv := newTestServer(&fakeSyncService{}, repo, func(a *ShipmentsAPI) { a.WithCache(c) })
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/vessels/positions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cached struct {
		Source string `json:"source"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cached))
	assert.Equal(t, "cache", cached.Source)

	srvNoCache := newTestServer(&fakeSyncService{}, repo)
	defer srvNoCache.Close()

	resp, err = http.Get(srvNoCache.URL + "/api/vessels/positions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var fromDB struct {
		Source  string      `json:"source"`
		Vessels []vesselDTO `json:"vessels"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fromDB))
	assert.Equal(t, "db", fromDB.Source)
	require.Len(t, fromDB.Vessels, 1)
	assert.Equal(t, imo, fromDB.Vessels[0].IMONumber)
}

func TestSearchShipments(t *testing.T) {
	repo := &fakeRepo{shipments: map[uint64]*models.Shipment{
		1: {ID: 1, ContainerNumber: "MSKU1234567"},
		2: {ID: 2, ContainerNumber: "TCLU7777777"},
	}}
	srv := newTestServer(&fakeSyncService{}, repo)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/shipments?query=msku")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Shipments []shipmentDTO `json:"shipments"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Shipments, 1)
	assert.Equal(t, "MSKU1234567", body.Shipments[0].ContainerNumber)

	resp, err = http.Get(srv.URL + "/api/shipments")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
