package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"evcentral/internal/models"
	"evcentral/internal/ocpp"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/registry"
)

// Disconnector marks a charger Disconnected when its session ends.
type Disconnector interface {
	Disconnect(ctx context.Context, chargerID string, orphaned func() bool) (*models.Charger, error)
}

// Server upgrades HTTP connections to OCPP WebSocket sessions.
type Server struct {
	registry           *registry.Registry
	processor          MessageProcessor
	chargers           Disconnector
	observer           ocpp.CallObserver
	logger             *zap.Logger
	timings            Timings
	requireSubprotocol bool
	upgrader           websocket.Upgrader
}

// NewServer builds ws server. observer may be nil.
func NewServer(reg *registry.Registry, processor MessageProcessor, chargers Disconnector, observer ocpp.CallObserver, timings Timings, requireSubprotocol bool, logger *zap.Logger) *Server {
	if timings.PingInterval <= 0 {
		timings.PingInterval = 30 * time.Second
	}
	if timings.WriteTimeout <= 0 {
		timings.WriteTimeout = 15 * time.Second
	}
	if timings.ReadTimeout <= 0 {
		timings.ReadTimeout = 2 * timings.PingInterval
	}
	return &Server{
		registry:           reg,
		processor:          processor,
		chargers:           chargers,
		observer:           observer,
		logger:             logger,
		timings:            timings,
		requireSubprotocol: requireSubprotocol,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{protocol.Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for /ocpp/{chargerID}.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	chargerID := strings.TrimSpace(chi.URLParam(r, "chargerID"))
	if chargerID == "" {
		http.Error(w, "charger id is required", http.StatusBadRequest)
		return
	}
	if s.requireSubprotocol && !offersSubprotocol(r) {
		http.Error(w, "unsupported websocket subprotocol, expected "+protocol.Subprotocol, http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.String("charger_id", chargerID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(chargerID, conn, s.processor, s.observer, s.timings, s.logger, func(c *Connection, reason error) {
		cancel()
		s.release(c.ChargerID(), c, reason)
	})
	s.registry.Register(connection)

	go connection.Start(ctx)
	s.logger.Info("charger connected", zap.String("charger_id", chargerID), zap.String("remote_addr", r.RemoteAddr))
}

// release drops a finished session and marks the charger Disconnected unless a newer
// session registered in the meantime.
func (s *Server) release(chargerID string, session registry.Session, reason error) {
	if !s.registry.Unregister(chargerID, session) {
		// superseded: the newer session owns the charger state
		return
	}
	s.markDisconnected(chargerID, reason)
}

// markDisconnected runs after the session left the registry. A reconnect can slip in
// between, so the registry is checked again under the charger lock.
func (s *Server) markDisconnected(chargerID string, reason error) {
	orphaned := func() bool {
		_, ok := s.registry.Lookup(chargerID)
		return !ok
	}
	charger, err := s.chargers.Disconnect(context.Background(), chargerID, orphaned)
	if err != nil {
		s.logger.Warn("failed to mark charger disconnected", zap.String("charger_id", chargerID), zap.Error(err))
		return
	}
	if charger.Status != models.ChargerDisconnected {
		s.logger.Debug("charger reconnected before disconnect was recorded", zap.String("charger_id", chargerID))
		return
	}
	s.logger.Info("charger disconnected", zap.String("charger_id", chargerID), zap.NamedError("reason", reason))
}

func offersSubprotocol(r *http.Request) bool {
	for _, p := range websocket.Subprotocols(r) {
		if p == protocol.Subprotocol {
			return true
		}
	}
	return false
}
