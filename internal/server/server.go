//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=mock_server
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/reservation"
)

const (
	SyncFull         = "full"
	SyncDifferential = "differential"
)

// Inventory is the read side of the engine.
type Inventory interface {
	ComputeAvailability(productID string) reservation.Availability
	InventorySummary() []reservation.Summary
	Reservations() map[string]reservation.Reservation
	UnitHistory(ctx context.Context, unitID string) ([]*repository.ItemHistory, error)
}

// Syncer triggers cache reconciliation.
type Syncer interface {
	FullResync(ctx context.Context) error
	CatchUp(ctx context.Context) error
}

type Server struct {
	inventory    Inventory
	syncer       Syncer
	log          *zap.Logger
	server       *http.Server
	AuditManager *AuditManager
}

func New(inventory Inventory, syncer Syncer, log *zap.Logger) *Server {
	return &Server{
		inventory:    inventory,
		syncer:       syncer,
		log:          log.With(zap.String("component", "http")),
		AuditManager: NewAuditManager(2, 5, 500*time.Millisecond, log),
	}
}

// Run serves until Shutdown is called.
func (s *Server) Run(ctx context.Context, port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.AuditManager.Start(ctx)

	s.log.Info("server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	s.AuditManager.Shutdown(ctx)
	s.log.Info("server shutdown completed")
	return nil
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.auditLogMiddleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet).Name("health")
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name("metrics")

	router.HandleFunc("/inventory", s.handleInventorySummary).Methods(http.MethodGet).Name("inventory_summary")
	router.HandleFunc("/inventory/{productID}/availability", s.handleAvailability).Methods(http.MethodGet).Name("availability")
	router.HandleFunc("/reservations", s.handleReservations).Methods(http.MethodGet).Name("reservations")
	router.HandleFunc("/units/{unitID}/history", s.handleUnitHistory).Methods(http.MethodGet).Name("unit_history")

	router.HandleFunc("/sync/{mode}", s.handleSync).Methods(http.MethodPost).Name("sync")

	return router
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInventorySummary(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.inventory.InventorySummary())
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productID"]
	respondJSON(w, http.StatusOK, s.inventory.ComputeAvailability(productID))
}

func (s *Server) handleReservations(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.inventory.Reservations())
}

func (s *Server) handleUnitHistory(w http.ResponseWriter, r *http.Request) {
	unitID := mux.Vars(r)["unitID"]

	history, err := s.inventory.UnitHistory(r.Context(), unitID)
	if err != nil {
		s.log.Error("failed to read unit history", zap.String("unit_id", unitID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Error: "+err.Error())
		return
	}
	if history == nil {
		history = []*repository.ItemHistory{}
	}

	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	mode := mux.Vars(r)["mode"]

	var err error
	switch mode {
	case SyncFull:
		err = s.syncer.FullResync(r.Context())
	case SyncDifferential:
		err = s.syncer.CatchUp(r.Context())
	default:
		respondError(w, http.StatusBadRequest, "Unknown sync mode: "+mode)
		return
	}
	if err != nil {
		s.log.Error("manual sync failed", zap.String("mode", mode), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Error: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Sync completed",
		"mode":    mode,
	})
}
