package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"evcentral/internal/ocpp"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/service"
)

const measurandEnergyImport = "Energy.Active.Import.Register"

// NewMeterValuesHandler acknowledges samples and forwards energy readings of open transactions.
func NewMeterValuesHandler(txs *service.Transactions, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
		if err != nil {
			return nil, err
		}

		for _, mv := range req.MeterValue {
			for _, sv := range mv.SampledValue {
				logger.Debug("meter value",
					zap.String("charger_id", chargerID),
					zap.Int("connector_id", req.ConnectorID),
					zap.String("measurand", sv.Measurand),
					zap.String("value", sv.Value),
					zap.String("unit", sv.Unit),
				)
			}
		}

		if req.TransactionID == nil {
			return protocol.MeterValuesResponse{}, nil
		}
		if wh, at, ok := latestEnergy(req.MeterValue); ok {
			if err := txs.PublishMeterValues(ctx, chargerID, *req.TransactionID, req.ConnectorID, wh, at); err != nil {
				logger.Debug("meter values not forwarded",
					zap.String("charger_id", chargerID),
					zap.Int64("transaction_id", *req.TransactionID),
					zap.Error(err),
				)
			}
		}
		return protocol.MeterValuesResponse{}, nil
	}
}

// latestEnergy returns the last energy register sample in Wh.
func latestEnergy(values []protocol.MeterValue) (int64, time.Time, bool) {
	var (
		wh    int64
		at    time.Time
		found bool
	)
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			if sv.Measurand != "" && sv.Measurand != measurandEnergyImport {
				continue
			}
			v, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				continue
			}
			if sv.Unit == "kWh" {
				v *= 1000
			}
			wh, at, found = int64(v), mv.Timestamp, true
		}
	}
	return wh, at, found
}
