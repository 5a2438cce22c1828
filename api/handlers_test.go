package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/agrilink/fleetcore/core/dispatch"
	"github.com/agrilink/fleetcore/core/fleet"
	"github.com/agrilink/fleetcore/core/matching"
	"github.com/agrilink/fleetcore/core/mission"
	"github.com/agrilink/fleetcore/core/model"
	"github.com/agrilink/fleetcore/core/store"
	"github.com/agrilink/fleetcore/infra/logger"
	"github.com/agrilink/fleetcore/internal/eventbus"
)

func newTestAPI(t *testing.T) (*echo.Echo, *fleet.Aggregator) {
	t.Helper()
	dispatch.ResetMetrics(nil)
	st := store.NewMemoryStore()
	agg := fleet.NewAggregator(fleet.Config{}, st, logger.NopLogger{})
	eng := matching.NewEngine(matching.Weights{}, logger.NopLogger{})
	bus := eventbus.New(64)
	t.Cleanup(bus.Close)
	coord, err := dispatch.NewCoordinator(st, mission.New(), eng, agg, bus, nil, logger.NopLogger{}, time.Second)
	require.NoError(t, err)
	return NewServer(coord, agg, bus, 5).Echo(), agg
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const createBody = `{
	"shipper_id": "farm-12",
	"receiver_id": "coop-3",
	"product": "wheat",
	"quantity": 2000,
	"unit": "kg",
	"priority": "NORMAL",
	"origin": {"name": "Beauce", "lat": 48.4, "lon": 1.5},
	"destination": {"name": "Rouen"}
}`

func createTestMission(t *testing.T, e *echo.Echo) model.Mission {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/api/missions", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m model.Mission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func ingestUnit(t *testing.T, agg *fleet.Aggregator, truckID string, capacity float64) {
	t.Helper()
	require.NoError(t, agg.Ingest(model.TelemetryReport{
		TruckID:      truckID,
		DriverID:     "d-" + truckID,
		FuelPct:      75,
		Availability: model.Available,
		CapacityKg:   capacity,
		Timestamp:    time.Now(),
	}))
}

func TestCreateMissionEndpoint(t *testing.T) {
	e, _ := newTestAPI(t)
	m := createTestMission(t, e)
	require.NotEmpty(t, m.ID)
	require.Equal(t, model.StatusCreated, m.Status)
	require.True(t, m.Origin.HasCoords)
	require.False(t, m.Destination.HasCoords)
}

func TestCreateMissionValidation(t *testing.T) {
	e, _ := newTestAPI(t)
	rec := doJSON(e, http.MethodPost, "/api/missions", `{"product": "wheat"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMissionNotFound(t *testing.T) {
	e, _ := newTestAPI(t)
	rec := doJSON(e, http.MethodGet, "/api/missions/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMissionsFilter(t *testing.T) {
	e, _ := newTestAPI(t)
	createTestMission(t, e)

	rec := doJSON(e, http.MethodGet, "/api/missions?status=CREATED", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var missions []model.Mission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missions))
	require.Len(t, missions, 1)

	rec = doJSON(e, http.MethodGet, "/api/missions?status=bogus", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestionsEndpoint(t *testing.T) {
	e, agg := newTestAPI(t)
	ingestUnit(t, agg, "t-1", 5000)
	m := createTestMission(t, e)

	rec := doJSON(e, http.MethodGet, "/api/missions/"+m.ID+"/suggestions?k=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res matching.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Suggestions, 1)
	require.Equal(t, "t-1", res.Suggestions[0].Candidate.TruckID)

	rec = doJSON(e, http.MethodGet, "/api/missions/"+m.ID+"/suggestions?k=zero", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssignEndpoint(t *testing.T) {
	e, agg := newTestAPI(t)
	ingestUnit(t, agg, "t-1", 5000)
	m := createTestMission(t, e)

	rec := doJSON(e, http.MethodPost, "/api/missions/"+m.ID+"/assign", `{"driver_id": "d-t-1", "truck_id": "t-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var assigned model.Mission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assigned))
	require.Equal(t, model.StatusAssigned, assigned.Status)

	// The unit is committed; a second mission cannot take it.
	m2 := createTestMission(t, e)
	rec = doJSON(e, http.MethodPost, "/api/missions/"+m2.ID+"/assign", `{"driver_id": "d-t-1", "truck_id": "t-1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	e, agg := newTestAPI(t)
	ingestUnit(t, agg, "t-1", 5000)
	m := createTestMission(t, e)

	doJSON(e, http.MethodPost, "/api/missions/"+m.ID+"/assign", `{"driver_id": "d-t-1", "truck_id": "t-1"}`)

	rec := doJSON(e, http.MethodPost, "/api/missions/"+m.ID+"/status", `{"status": "PICKED_UP", "actor": "d-t-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Skipping straight to CONFIRMED is an illegal transition.
	rec = doJSON(e, http.MethodPost, "/api/missions/"+m.ID+"/status", `{"status": "CONFIRMED", "actor": "d-t-1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Delivery without evidence is a client error.
	doJSON(e, http.MethodPost, "/api/missions/"+m.ID+"/status", `{"status": "IN_TRANSIT", "actor": "d-t-1"}`)
	rec = doJSON(e, http.MethodPost, "/api/missions/"+m.ID+"/status", `{"status": "DELIVERED", "actor": "d-t-1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(e, http.MethodPost, "/api/missions/"+m.ID+"/status", `{"status": "DELIVERED", "actor": "d-t-1", "evidence": "photo-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFleetEndpoint(t *testing.T) {
	e, agg := newTestAPI(t)
	ingestUnit(t, agg, "t-1", 5000)

	rec := doJSON(e, http.MethodGet, "/api/fleet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Units   []model.Candidate `json:"units"`
		Metrics struct {
			AvailableUnits int  `json:"available_units"`
			MeshHealthy    bool `json:"mesh_healthy"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Units, 1)
	require.Equal(t, 1, body.Metrics.AvailableUnits)
	require.True(t, body.Metrics.MeshHealthy)
}

func TestHealthz(t *testing.T) {
	e, _ := newTestAPI(t)
	rec := doJSON(e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
