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

// NewStopTransactionHandler closes the transaction reported by the charger.
func NewStopTransactionHandler(chargers *service.Chargers, txs *service.Transactions, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StopTransactionRequest](payload)
		if err != nil {
			return nil, err
		}

		_, err = txs.Stop(ctx, service.StopRequest{
			ChargerID:     chargerID,
			TransactionID: req.TransactionID,
			MeterStop:     req.MeterStop,
			Timestamp:     req.Timestamp,
			Reason:        req.Reason,
		})
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			return nil, ocpp.NewCallError(protocol.ErrorPropertyConstraintViolation, "unknown transactionId")
		case errors.Is(err, service.ErrAlreadyStopped):
			logger.Info("stop for already stopped transaction",
				zap.String("charger_id", chargerID),
				zap.Int64("transaction_id", req.TransactionID),
			)
		case err != nil:
			return nil, err
		}

		if _, err := chargers.ReportStatus(ctx, chargerID, models.ChargerAvailable); err != nil {
			logger.Warn("failed to mark charger available", zap.String("charger_id", chargerID), zap.Error(err))
		}

		resp := protocol.StopTransactionResponse{}
		if req.IdTag != "" {
			resp.IdTagInfo = &protocol.IdTagInfo{Status: protocol.AuthorizationAccepted}
		}
		return resp, nil
	}
}
