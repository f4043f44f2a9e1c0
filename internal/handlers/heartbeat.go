package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"evcentral/internal/ocpp"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/service"
)

// NewHeartbeatHandler refreshes liveness and returns server time. A rejected
// transition is logged but still answered.
func NewHeartbeatHandler(chargers *service.Chargers, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
		if _, err := chargers.Heartbeat(ctx, chargerID); err != nil {
			if !errors.Is(err, service.ErrInvalidTransition) && !errors.Is(err, service.ErrChargerNotFound) {
				return nil, err
			}
			logger.Warn("heartbeat before boot", zap.String("charger_id", chargerID), zap.Error(err))
		}
		return protocol.HeartbeatResponse{
			CurrentTime: time.Now().UTC(),
		}, nil
	}
}
