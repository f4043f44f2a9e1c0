package handlers

import (
	"time"

	"go.uber.org/zap"

	"evcentral/internal/ocpp"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/service"
)

// Deps are the collaborators shared by the inbound handlers.
type Deps struct {
	Chargers     *service.Chargers
	Transactions *service.Transactions
	BootInterval time.Duration
	Logger       *zap.Logger
}

// Routes returns the fixed action table for charger-initiated calls.
func Routes(d Deps) ocpp.Routes {
	return ocpp.Routes{
		protocol.ActionBootNotification:   NewBootNotificationHandler(d.Chargers, d.BootInterval, d.Logger),
		protocol.ActionHeartbeat:          NewHeartbeatHandler(d.Chargers, d.Logger),
		protocol.ActionAuthorize:          NewAuthorizeHandler(d.Transactions, d.Logger),
		protocol.ActionStartTransaction:   NewStartTransactionHandler(d.Chargers, d.Transactions, d.Logger),
		protocol.ActionStopTransaction:    NewStopTransactionHandler(d.Chargers, d.Transactions, d.Logger),
		protocol.ActionStatusNotification: NewStatusNotificationHandler(d.Chargers, d.Logger),
		protocol.ActionMeterValues:        NewMeterValuesHandler(d.Transactions, d.Logger),
	}
}
