package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"evcentral/internal/ocpp"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/service"
)

// NewAuthorizeHandler looks the tag up for the charger.
func NewAuthorizeHandler(txs *service.Transactions, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.AuthorizeRequest](payload)
		if err != nil {
			return nil, err
		}

		status, err := txs.Authorize(ctx, chargerID, req.IdTag)
		if err != nil {
			return nil, err
		}
		logger.Info("authorize", zap.String("charger_id", chargerID), zap.String("id_tag", req.IdTag), zap.String("status", string(status)))

		return protocol.AuthorizeResponse{
			IdTagInfo: protocol.IdTagInfo{Status: string(status)},
		}, nil
	}
}
