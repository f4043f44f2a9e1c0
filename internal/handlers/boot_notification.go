package handlers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"evcentral/internal/ocpp"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/service"
)

// NewBootNotificationHandler upserts the charger as Connected and returns the heartbeat interval.
func NewBootNotificationHandler(chargers *service.Chargers, interval time.Duration, logger *zap.Logger) ocpp.HandlerFunc {
	seconds := int(interval / time.Second)
	if seconds <= 0 {
		seconds = 10
	}
	return func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.BootNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		if _, err := chargers.Boot(ctx, chargerID, req.ChargePointModel, req.ChargePointVendor); err != nil {
			logger.Error("failed to register charger", zap.String("charger_id", chargerID), zap.Error(err))
			return nil, err
		}

		return protocol.BootNotificationResponse{
			CurrentTime: time.Now().UTC(),
			Interval:    seconds,
			Status:      protocol.RegistrationAccepted,
		}, nil
	}
}
