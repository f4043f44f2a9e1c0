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

// NewStartTransactionHandler authorizes the tag and opens a transaction.
func NewStartTransactionHandler(chargers *service.Chargers, txs *service.Transactions, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StartTransactionRequest](payload)
		if err != nil {
			return nil, err
		}

		status, err := txs.Authorize(ctx, chargerID, req.IdTag)
		if err != nil {
			return nil, err
		}
		if status != service.AuthorizationAccepted {
			logger.Info("start transaction not authorized",
				zap.String("charger_id", chargerID),
				zap.String("id_tag", req.IdTag),
				zap.String("status", string(status)),
			)
			return protocol.StartTransactionResponse{
				IdTagInfo: protocol.IdTagInfo{Status: string(status)},
			}, nil
		}

		tx, err := txs.Start(ctx, service.StartRequest{
			ChargerID:   chargerID,
			IDTag:       req.IdTag,
			ConnectorID: req.ConnectorID,
			MeterStart:  req.MeterStart,
			Timestamp:   req.Timestamp,
		})
		if errors.Is(err, service.ErrConflictingTransaction) {
			logger.Warn("start transaction while another is active", zap.String("charger_id", chargerID), zap.Error(err))
			resp := protocol.StartTransactionResponse{
				IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationConcurrentTx},
			}
			if tx != nil {
				resp.TransactionID = tx.ID
			}
			return resp, nil
		}
		if err != nil {
			return nil, err
		}

		if _, err := chargers.ReportStatus(ctx, chargerID, models.ChargerCharging); err != nil {
			logger.Warn("failed to mark charger charging", zap.String("charger_id", chargerID), zap.Error(err))
		}

		return protocol.StartTransactionResponse{
			TransactionID: tx.ID,
			IdTagInfo:     protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}, nil
	}
}
