package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dctwin/internal/clock"
	"dctwin/internal/core/anomaly"
	"dctwin/internal/core/capacity"
	"dctwin/internal/core/lifecycle"
	"dctwin/internal/domain"
	"dctwin/internal/report"
	"dctwin/internal/repository/sqlstore"
	"dctwin/internal/service"
)

const sceneYAML = `site:
  id: S1
  name: Frankfurt
rooms:
  - id: RM1
    name: Hall A
    racks:
      - id: R1
        name: A01
        u_height: 42
        power_kw_limit: 10
        current_power_kw: 2
        devices:
          - id: d1
            name: web-01
            u_start: 1
            u_height: 2
            power_kw: 3
            logical_equipment_id: L1
      - id: R2
        name: A02
        u_height: 42
        power_kw_limit: 10
        current_power_kw: 2
        devices:
          - id: d2
            name: db-01
            u_start: 5
            u_height: 4
            power_kw: 6
            logical_equipment_id: L2
      - id: R3
        name: A03
        u_height: 42
        power_kw_limit: 10
        current_power_kw: 2
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlstore.Open(sqlstore.Options{Dialect: sqlstore.DialectSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	bus := service.NewEventBus()
	engine := lifecycle.NewEngine(store, clk, zap.NewNop())
	h := New(
		service.NewInventoryService(store, engine, bus, clk, zap.NewNop()),
		service.NewAnomalyService(store, anomaly.NewDetector(anomaly.DefaultPolicy(), clk), bus, nil, clk, zap.NewNop()),
		service.NewCapacityService(store, capacity.DefaultOptions(), zap.NewNop()),
		zap.NewNop(),
	)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(Chain(mux, Recover(zap.NewNop()), CORS, Logger(zap.NewNop())))
	t.Cleanup(srv.Close)

	resp := do(t, srv, http.MethodPost, "/api/import/scene?format=yaml", strings.NewReader(sceneYAML), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return do(t, srv, method, path, &buf, headers)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestMoveDevice(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/api/devices/d1/move", MoveBody{
		TargetRackID:    "R3",
		TargetUPosition: 10,
		TargetPhase:     "TO_BE",
		MoveType:        "MODIFIED",
	}, map[string]string{UserIDHeader: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[MoveResponse](t, resp)
	assert.True(t, body.Success)
	require.NotNil(t, body.Device)
	assert.Equal(t, "R3", body.Device.RackID)
	assert.Equal(t, domain.StatusModified, body.Device.Status4D)

	resp = do(t, srv, http.MethodGet, "/api/devices/d1/history", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]domain.EquipmentHistory](t, resp)
	require.Len(t, history, 2)
	var move *domain.EquipmentHistory
	for i := range history {
		if history[i].ModificationType == domain.ModificationMove {
			move = &history[i]
		}
	}
	require.NotNil(t, move)
	assert.Equal(t, "alice", move.UserID)
	assert.Equal(t, "R3/U10", move.ToLocation.String())
}

func TestMoveDevice_CreateProposed(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/api/devices/d1/move", MoveBody{
		TargetRackID:    "R3",
		TargetUPosition: 10,
		TargetPhase:     "FUTURE",
		MoveType:        "CREATE_PROPOSED",
		UserID:          "bob",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[MoveResponse](t, resp)
	require.NotNil(t, body.NewDevice)
	assert.Equal(t, domain.StatusExistingRemoved, body.Device.Status4D)
	assert.Equal(t, domain.StatusFuture, body.NewDevice.Status4D)
	assert.NotEmpty(t, body.ChangeSetID)
}

func TestMoveDevice_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name      string
		deviceID  string
		body      MoveBody
		status    int
		conflicts []string
	}{
		{
			name:      "conflict",
			deviceID:  "d1",
			body:      MoveBody{TargetRackID: "R2", TargetUPosition: 7, TargetPhase: "AS_IS", MoveType: "MODIFIED"},
			status:    http.StatusConflict,
			conflicts: []string{"d2"},
		},
		{
			name:     "unknown device",
			deviceID: "nope",
			body:     MoveBody{TargetRackID: "R2", TargetUPosition: 20, TargetPhase: "AS_IS", MoveType: "MODIFIED"},
			status:   http.StatusNotFound,
		},
		{
			name:     "bad phase",
			deviceID: "d1",
			body:     MoveBody{TargetRackID: "R2", TargetUPosition: 20, TargetPhase: "SOMEDAY", MoveType: "MODIFIED"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "out of bounds",
			deviceID: "d1",
			body:     MoveBody{TargetRackID: "R2", TargetUPosition: 42, TargetPhase: "AS_IS", MoveType: "MODIFIED"},
			status:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, srv, http.MethodPost, "/api/devices/"+tt.deviceID+"/move", tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode[MoveResponse](t, resp)
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)

			var ids []string
			for _, d := range body.Conflicts {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.conflicts, ids)
		})
	}
}

func TestDeleteDevice(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodDelete, "/api/devices/d2", nil, map[string]string{UserIDHeader: "carol"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[MoveResponse](t, resp)
	assert.True(t, body.Success)
	assert.False(t, body.Device.IsActive)

	resp = do(t, srv, http.MethodDelete, "/api/devices/d2", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCheckPlacement(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/api/racks/R2/placement-check", PlacementBody{UStart: 8, UHeight: 2, Phase: "AS_IS"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[PlacementResponse](t, resp)
	assert.True(t, body.HasConflict)
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, "d2", body.Conflicts[0].ID)

	resp = doJSON(t, srv, http.MethodPost, "/api/racks/R2/placement-check", PlacementBody{UStart: 9, UHeight: 2, Phase: "AS_IS"}, nil)
	body = decode[PlacementResponse](t, resp)
	assert.False(t, body.HasConflict)
	assert.Empty(t, body.Conflicts)

	resp = doJSON(t, srv, http.MethodPost, "/api/racks/R9/placement-check", PlacementBody{UStart: 1, UHeight: 1, Phase: "AS_IS"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody := decode[ErrorResponse](t, resp)
	assert.Equal(t, "Not found", errBody.Error)
}

func TestAnomalyEndpoints(t *testing.T) {
	srv := newTestServer(t)
	scan := map[string]any{
		"records": []domain.VerificationRecord{
			{LogicalEquipmentID: "L1", RackID: "R1", UStart: 1},
			{RackID: "R3", UStart: 30},
		},
	}

	resp := doJSON(t, srv, http.MethodPost, "/api/sites/S1/anomalies/detect", scan, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	preview := decode[map[string][]domain.Anomaly](t, resp)
	require.Len(t, preview["anomalies"], 2)
	assert.Equal(t, domain.AnomalyMissing, preview["anomalies"][0].Type)
	assert.Equal(t, domain.AnomalyUnexpected, preview["anomalies"][1].Type)

	for _, want := range []int{2, 0} {
		resp = doJSON(t, srv, http.MethodPost, "/api/sites/S1/anomalies", scan, map[string]string{IdempotencyKeyHeader: "scan-1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		saved := decode[map[string]int](t, resp)
		assert.Equal(t, want, saved["saved"])
		assert.Equal(t, 2, saved["detected"])
	}

	resp = do(t, srv, http.MethodGet, "/api/sites/S1/anomalies?status=OPEN", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]domain.Anomaly](t, resp)
	require.Len(t, list, 2)

	resp = doJSON(t, srv, http.MethodPatch, "/api/anomalies/"+list[0].ID, map[string]string{"status": "RESOLVED", "notes": "re-seated"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[domain.Anomaly](t, resp)
	assert.Equal(t, domain.AnomalyResolved, updated.Status)
	assert.Equal(t, "re-seated", updated.Notes)

	resp = doJSON(t, srv, http.MethodPatch, "/api/anomalies/"+list[0].ID, map[string]string{"status": "GONE"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, srv, http.MethodGet, "/api/sites/S1/anomalies?status=OPEN", nil, nil)
	assert.Len(t, decode[[]domain.Anomaly](t, resp), 1)

	resp = do(t, srv, http.MethodGet, "/api/sites/S1/anomalies/export", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, report.ContentType, resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")), "xlsx is a zip archive")
}

func TestDetectAnomalies_YAMLScan(t *testing.T) {
	srv := newTestServer(t)
	scan := `records:
  - logical_equipment_id: L1
    rack_id: R1
    u_start: 1
  - logical_equipment_id: L2
    rack_id: R2
    u_start: 5
`
	resp := do(t, srv, http.MethodPost, "/api/sites/S1/anomalies/detect", strings.NewReader(scan), map[string]string{"Content-Type": "application/x-yaml"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	preview := decode[map[string][]domain.Anomaly](t, resp)
	assert.Empty(t, preview["anomalies"])
}

func TestSaveAnomalies_RejectsInvalidRecords(t *testing.T) {
	srv := newTestServer(t)

	for name, records := range map[string][]domain.VerificationRecord{
		"no identity":     {{UStart: 4}},
		"bad observation": {{RackID: "R3", UStart: 4, Observed: "MAYBE"}},
	} {
		t.Run(name, func(t *testing.T) {
			resp := doJSON(t, srv, http.MethodPost, "/api/sites/S1/anomalies", map[string]any{"records": records}, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			resp.Body.Close()
		})
	}

	resp := do(t, srv, http.MethodGet, "/api/sites/S1/anomalies", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]domain.Anomaly](t, resp))
}

func TestFindCapacity(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/api/sites/S1/capacity?phase=TO_BE", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	block := decode[capacity.Block](t, resp)
	assert.Equal(t, []string{"R1", "R2", "R3"}, block.RackIDs)
	assert.Equal(t, 120, block.TotalFreeU)
	assert.InDelta(t, 24, block.TotalPowerHeadroomKw, 1e-9)

	resp = do(t, srv, http.MethodGet, "/api/sites/S1/capacity?phase=NEVER", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSceneEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/api/sites", nil, nil)
	sites := decode[[]domain.Site](t, resp)
	require.Len(t, sites, 1)
	assert.Equal(t, "S1", sites[0].ID)

	resp = do(t, srv, http.MethodGet, "/api/sites/S1/scene?phase=AS_IS", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scene := decode[domain.SceneModel](t, resp)
	assert.Len(t, scene.Racks, 3)
	assert.Len(t, scene.Devices, 2)

	resp = do(t, srv, http.MethodGet, "/api/export/scene/S1?format=json", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "S1.json")
	resp.Body.Close()

	resp = do(t, srv, http.MethodGet, "/api/export/scene/S9", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, srv, http.MethodPost, "/api/import/scene?format=yaml", strings.NewReader(sceneYAML), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "site already exists")
	resp.Body.Close()
}

func TestMiddleware(t *testing.T) {
	t.Run("recover", func(t *testing.T) {
		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}), Recover(zap.NewNop()))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		called := false
		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}), CORS)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/sites", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.False(t, called)
	})

	t.Run("chain order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}
		h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), mark("outer"), mark("inner"))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner"}, order)
	})
}
