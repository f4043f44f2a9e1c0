package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"evcentral/internal/models"
	"evcentral/internal/ocpp"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/service"
)

// NewStatusNotificationHandler maps connector status onto the charger state machine.
func NewStatusNotificationHandler(chargers *service.Chargers, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StatusNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		status := chargerStatus(req.Status)
		if _, err := chargers.ReportStatus(ctx, chargerID, status); err != nil {
			if !errors.Is(err, service.ErrInvalidTransition) && !errors.Is(err, service.ErrChargerNotFound) {
				return nil, err
			}
			logger.Warn("status notification rejected",
				zap.String("charger_id", chargerID),
				zap.Int("connector_id", req.ConnectorID),
				zap.String("status", req.Status),
				zap.Error(err),
			)
		}

		return protocol.StatusNotificationResponse{}, nil
	}
}

func chargerStatus(connectorStatus string) models.ChargerStatus {
	switch connectorStatus {
	case protocol.ConnectorCharging, protocol.ConnectorSuspendedEV, protocol.ConnectorSuspendedEVSE:
		return models.ChargerCharging
	case protocol.ConnectorFaulted:
		return models.ChargerFaulted
	case protocol.ConnectorUnavailable:
		return models.ChargerUnavailable
	default:
		return models.ChargerAvailable
	}
}
