package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/reservation"
	mock_server "gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/server/mocks"
)

func newTestServer(t *testing.T) (*Server, *mock_server.MockInventory, *mock_server.MockSyncer) {
	ctrl := gomock.NewController(t)
	inventory := mock_server.NewMockInventory(ctrl)
	syncer := mock_server.NewMockSyncer(ctrl)
	return New(inventory, syncer, zap.NewNop()), inventory, syncer
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rr, req)
	return rr
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := serve(s, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHandleMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := serve(s, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestHandleAvailability(t *testing.T) {
	s, inventory, _ := newTestServer(t)
	inventory.EXPECT().ComputeAvailability("wheelchair-a").Return(reservation.Availability{
		ProductID:          "wheelchair-a",
		PhysicalAvailable:  3,
		Reserved:           1,
		EffectiveAvailable: 2,
		ProcessingStock:    1,
	})

	rr := serve(s, http.MethodGet, "/inventory/wheelchair-a/availability")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"product_id":"wheelchair-a",
		"physical_available":3,
		"reserved":1,
		"effective_available":2,
		"processing_stock":1
	}`, rr.Body.String())
}

func TestHandleInventorySummary(t *testing.T) {
	s, inventory, _ := newTestServer(t)
	inventory.EXPECT().InventorySummary().Return([]reservation.Summary{
		{ProductID: "wheelchair-a", ProductName: "Wheelchair A", PhysicalAvailable: 2, Rented: 4},
	})

	rr := serve(s, http.MethodGet, "/inventory")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{
		"product_id":"wheelchair-a",
		"product_name":"Wheelchair A",
		"physical_available":2,
		"reserved":0,
		"effective_available":0,
		"processing_stock":0,
		"rented":4,
		"maintenance":0
	}]`, rr.Body.String())
}

func TestHandleReservations(t *testing.T) {
	s, inventory, _ := newTestServer(t)
	orderDate := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	inventory.EXPECT().Reservations().Return(map[string]reservation.Reservation{
		"wheelchair-a": {
			ProductID:     "wheelchair-a",
			TotalReserved: 2,
			Orders: []reservation.ReservingOrder{
				{OrderID: "O-1", CustomerName: "Sato", Quantity: 2, OrderDate: orderDate},
			},
		},
	})

	rr := serve(s, http.MethodGet, "/reservations")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"wheelchair-a":{
		"product_id":"wheelchair-a",
		"total_reserved":2,
		"orders":[{"order_id":"O-1","customer_name":"Sato","quantity":2,"order_date":"2026-10-16T09:00:00Z"}]
	}}`, rr.Body.String())
}

func TestHandleUnitHistory(t *testing.T) {
	tests := []struct {
		name           string
		setupMocks     func(inventory *mock_server.MockInventory)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "history found",
			setupMocks: func(inventory *mock_server.MockInventory) {
				inventory.EXPECT().UnitHistory(gomock.Any(), "WC-007").Return([]*repository.ItemHistory{
					{
						UnitID:     "WC-007",
						Action:     repository.ActionAssigned,
						FromStatus: repository.UnitAvailable,
						ToStatus:   repository.UnitReserved,
						Actor:      "tanaka",
					},
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "no history",
			setupMocks: func(inventory *mock_server.MockInventory) {
				inventory.EXPECT().UnitHistory(gomock.Any(), "WC-007").Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `[]`,
		},
		{
			name: "repository error",
			setupMocks: func(inventory *mock_server.MockInventory) {
				inventory.EXPECT().UnitHistory(gomock.Any(), "WC-007").Return(nil, errors.New("connection reset"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"Error: connection reset"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, inventory, _ := newTestServer(t)
			tt.setupMocks(inventory)

			rr := serve(s, http.MethodGet, "/units/WC-007/history")

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, rr.Body.String())
			}
		})
	}
}

func TestHandleSync(t *testing.T) {
	tests := []struct {
		name           string
		mode           string
		setupMocks     func(syncer *mock_server.MockSyncer)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "full resync",
			mode: "full",
			setupMocks: func(syncer *mock_server.MockSyncer) {
				syncer.EXPECT().FullResync(gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"message":"Sync completed","mode":"full"}`,
		},
		{
			name: "differential catch-up",
			mode: "differential",
			setupMocks: func(syncer *mock_server.MockSyncer) {
				syncer.EXPECT().CatchUp(gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"message":"Sync completed","mode":"differential"}`,
		},
		{
			name:           "unknown mode",
			mode:           "partial",
			setupMocks:     func(*mock_server.MockSyncer) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"Unknown sync mode: partial"}`,
		},
		{
			name: "remote unavailable",
			mode: "full",
			setupMocks: func(syncer *mock_server.MockSyncer) {
				syncer.EXPECT().FullResync(gomock.Any()).Return(errors.New("full resync: dial tcp: connection refused"))
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"error":"Error: full resync: dial tcp: connection refused"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, syncer := newTestServer(t)
			tt.setupMocks(syncer)

			rr := serve(s, http.MethodPost, "/sync/"+tt.mode)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.JSONEq(t, tt.expectedBody, rr.Body.String())
		})
	}
}

func TestSyncRejectsGet(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := serve(s, http.MethodGet, "/sync/full")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAuditLogMiddleware(t *testing.T) {
	ctrl := gomock.NewController(t)
	inventory := mock_server.NewMockInventory(ctrl)
	syncer := mock_server.NewMockSyncer(ctrl)
	core, logs := observer.New(zap.InfoLevel)
	s := New(inventory, syncer, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.AuditManager.Start(ctx)

	inventory.EXPECT().UnitHistory(gomock.Any(), "WC-007").Return(nil, errors.New("connection reset"))
	syncer.EXPECT().CatchUp(gomock.Any()).Return(nil)

	routes := s.setupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/units/WC-007/history", nil)
	req.Header.Set(ActorHeader, "tanaka")
	routes.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/sync/differential", nil)
	req.SetBasicAuth("suzuki", "")
	routes.ServeHTTP(httptest.NewRecorder(), req)

	s.AuditManager.Shutdown(context.Background())

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 2)

	byHandler := make(map[string]map[string]interface{})
	for _, e := range entries {
		fields := e.ContextMap()
		byHandler[fields["handler"].(string)] = fields
	}

	history := byHandler["unit_history"]
	require.NotNil(t, history)
	assert.Equal(t, "WC-007", history["unit_id"])
	assert.Equal(t, "tanaka", history["actor"])
	assert.Equal(t, int64(http.StatusInternalServerError), history["status_code"])
	assert.Equal(t, "Error: connection reset", history["error"])

	sync := byHandler["sync"]
	require.NotNil(t, sync)
	assert.Equal(t, "differential", sync["sync_mode"])
	assert.Equal(t, "suzuki", sync["actor"])
	assert.Equal(t, int64(http.StatusOK), sync["status_code"])
	assert.NotContains(t, sync, "error")
}

func TestAuditManager_FlushesOnShutdown(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewAuditManager(1, 2, time.Hour, zap.New(core))
	ctx := context.Background()
	m.Start(ctx)

	for _, path := range []string{"/inventory", "/reservations", "/healthz"} {
		m.LogEntry(ctx, AuditLogEntry{Method: http.MethodGet, Path: path, StatusCode: http.StatusOK})
	}
	m.Shutdown(ctx)
	m.Shutdown(ctx)

	assert.Len(t, logs.FilterMessage("http request").All(), 3)

	m.LogEntry(ctx, AuditLogEntry{Method: http.MethodGet, Path: "/late"})
	assert.Len(t, logs.FilterMessage("http request").All(), 4)
}
