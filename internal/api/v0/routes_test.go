package v0

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shiftline/shiftline-sync-server/internal/config"
	"github.com/shiftline/shiftline-sync-server/internal/notify"
	queuemocks "github.com/shiftline/shiftline-sync-server/internal/notify/queue/mocks"
	"github.com/shiftline/shiftline-sync-server/internal/status"
	pkgsync "github.com/shiftline/shiftline-sync-server/internal/sync"
	syncmocks "github.com/shiftline/shiftline-sync-server/internal/sync/mocks"
)

func newTestRouter(t *testing.T) (*syncmocks.MockController, *queuemocks.MockQueue, http.Handler) {
	t.Helper()
	ctrl := gomock.NewController(t)
	controller := syncmocks.NewMockController(ctrl)
	q := queuemocks.NewMockQueue(ctrl)
	return controller, q, Router(controller, q)
}

func TestControlEndpoints(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		path       string
		setupMock  func(*syncmocks.MockController)
		wantStatus int
		wantBody   string
	}{
		{
			name: "start succeeds",
			path: "/control/start",
			setupMock: func(m *syncmocks.MockController) {
				m.EXPECT().Start(gomock.Any()).Return(nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "started",
		},
		{
			name: "start without destination",
			path: "/control/start",
			setupMock: func(m *syncmocks.MockController) {
				m.EXPECT().Start(gomock.Any()).
					Return(pkgsync.NewConfigurationError("no usable destination configured", nil))
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "destination",
		},
		{
			name: "stop succeeds",
			path: "/control/stop",
			setupMock: func(m *syncmocks.MockController) {
				m.EXPECT().Stop().Return(nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "stopped",
		},
		{
			name: "pause from stopped conflicts",
			path: "/control/pause",
			setupMock: func(m *syncmocks.MockController) {
				m.EXPECT().Pause().
					Return(pkgsync.NewInvalidTransitionError("cannot pause while Stopped"))
			},
			wantStatus: http.StatusConflict,
			wantBody:   "cannot pause",
		},
		{
			name: "resume succeeds",
			path: "/control/resume",
			setupMock: func(m *syncmocks.MockController) {
				m.EXPECT().Resume().Return(nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "resumed",
		},
		{
			name: "force sync succeeds",
			path: "/sync/force",
			setupMock: func(m *syncmocks.MockController) {
				m.EXPECT().ForceSyncNow(gomock.Any()).Return(nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "sync completed",
		},
		{
			name: "force sync while stopped conflicts",
			path: "/sync/force",
			setupMock: func(m *syncmocks.MockController) {
				m.EXPECT().ForceSyncNow(gomock.Any()).
					Return(pkgsync.NewNotConfiguredError("sync service is not running"))
			},
			wantStatus: http.StatusConflict,
			wantBody:   "not running",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			controller, _, router := newTestRouter(t)
			tt.setupMock(controller)

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	controller, _, router := newTestRouter(t)

	lastSync := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	controller.EXPECT().Status().Return(status.SyncState{
		Phase:        status.PhaseRunning,
		LastSyncAt:   &lastSync,
		FilesSynced:  7,
		ErrorCount:   2,
		RecentErrors: []string{"failed to mirror bad.csv"},
		Source:       "/srv/attendance",
		Destination:  "/mnt/backup",
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Running)
	assert.False(t, resp.Paused)
	assert.Equal(t, "Running", resp.Status)
	require.NotNil(t, resp.LastSync)
	assert.Equal(t, "2026-03-10T09:30:00Z", *resp.LastSync)
	assert.Equal(t, 7, resp.FilesSynced)
	assert.Equal(t, 2, resp.ErrorCount)
	assert.Equal(t, []string{"failed to mirror bad.csv"}, resp.Errors)
	assert.Equal(t, "/srv/attendance", resp.Source)
	assert.Equal(t, "/mnt/backup", resp.Destination)
}

func TestGetStatus_StoppedDefaults(t *testing.T) {
	t.Parallel()

	controller, _, router := newTestRouter(t)
	controller.EXPECT().Status().Return(status.SyncState{Phase: status.PhaseStopped})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	assert.False(t, resp.Paused)
	assert.Nil(t, resp.LastSync)
	assert.NotNil(t, resp.Errors)
	assert.Empty(t, resp.Errors)
}

func TestGetQueue(t *testing.T) {
	t.Parallel()

	_, q, router := newTestRouter(t)

	now := time.Now()
	q.EXPECT().List(gomock.Any()).Return([]notify.QueueItem{
		{ItemKey: "k1", Kind: notify.KindDailyReminder, Priority: notify.PriorityHigh, EnqueuedAt: now},
		{ItemKey: "k2", Kind: notify.KindDailyReminder, Priority: notify.PriorityMedium, EnqueuedAt: now},
		{ItemKey: "k3", Kind: notify.KindSystemAlert, Priority: notify.PriorityLow, EnqueuedAt: now, Acknowledged: true},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Pending)
	assert.Equal(t, map[string]int{"DailyReminder": 2}, resp.CountsByKind)
	require.Len(t, resp.Items, 2)
}

func TestUpdateConfig(t *testing.T) {
	t.Parallel()

	t.Run("valid destination", func(t *testing.T) {
		t.Parallel()
		controller, _, router := newTestRouter(t)

		controller.EXPECT().SetDestination(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, dest *config.DestinationConfig) error {
				assert.Equal(t, "/mnt/backup", dest.Path)
				return nil
			})

		body, err := json.Marshal(ConfigRequest{Destination: &DestinationRequest{Path: "/mnt/backup"}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/config", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "destination updated")
	})

	t.Run("unreachable destination", func(t *testing.T) {
		t.Parallel()
		controller, _, router := newTestRouter(t)

		controller.EXPECT().SetDestination(gomock.Any(), gomock.Any()).
			Return(pkgsync.NewConfigurationError("destination validation failed", nil))

		body, err := json.Marshal(ConfigRequest{Destination: &DestinationRequest{Path: "/nope"}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/config", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing destination", func(t *testing.T) {
		t.Parallel()
		_, _, router := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/config", bytes.NewReader([]byte(`{}`)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "destination is required")
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		_, _, router := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/config", bytes.NewReader([]byte(`{broken`)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthRouter(t *testing.T) {
	t.Parallel()

	router := HealthRouter()

	t.Run("health", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	})

	t.Run("version", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/version", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp, "version")
		assert.Contains(t, resp, "go_version")
	})
}
