package service

import (
	"context"
	"errors"
	"time"

	"evcentral/internal/models"
)

// ChargerView is a charger as listed by the façade.
type ChargerView struct {
	ID        string               `json:"id"`
	Model     string               `json:"model,omitempty"`
	Vendor    string               `json:"vendor,omitempty"`
	Status    models.ChargerStatus `json:"status"`
	LastSeen  time.Time            `json:"lastSeen"`
	Connected bool                 `json:"connected"`
}

// TransactionView is a transaction as listed by the façade.
type TransactionView struct {
	ID          int64                    `json:"id"`
	ChargerID   string                   `json:"chargerId"`
	IDTag       string                   `json:"idTag"`
	ConnectorID int                      `json:"connectorId"`
	StartTime   time.Time                `json:"startTime"`
	StopTime    *time.Time               `json:"stopTime,omitempty"`
	MeterStart  int64                    `json:"meterStart"`
	MeterStop   *int64                   `json:"meterStop,omitempty"`
	EnergyWh    int64                    `json:"energyWh"`
	Status      models.TransactionStatus `json:"status"`
	Simulated   bool                     `json:"simulated"`
}

// Central is the set of operations offered to the HTTP façade.
type Central struct {
	chargers         *Chargers
	txs              *Transactions
	dispatcher       *Dispatcher
	sessions         Sessions
	defaultTag       string
	defaultConnector int
}

// NewCentral builds the façade. defaultTag and defaultConnector are used by StartCharging.
func NewCentral(chargers *Chargers, txs *Transactions, dispatcher *Dispatcher, sessions Sessions, defaultTag string, defaultConnector int) *Central {
	return &Central{
		chargers:         chargers,
		txs:              txs,
		dispatcher:       dispatcher,
		sessions:         sessions,
		defaultTag:       defaultTag,
		defaultConnector: defaultConnector,
	}
}

// AddCharger registers a charger id before its first connection.
func (c *Central) AddCharger(ctx context.Context, chargerID string) (ChargerView, error) {
	charger, err := c.chargers.Add(ctx, chargerID)
	if err != nil {
		return ChargerView{}, err
	}
	return c.view(charger), nil
}

// ListChargers lists every known charger with its reachability.
func (c *Central) ListChargers(ctx context.Context) ([]ChargerView, error) {
	chargers, err := c.chargers.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ChargerView, 0, len(chargers))
	for i := range chargers {
		views = append(views, c.view(&chargers[i]))
	}
	return views, nil
}

// StartCharging starts a transaction on chargerID with the default tag.
func (c *Central) StartCharging(ctx context.Context, chargerID string) (CommandOutcome, error) {
	if _, err := c.chargers.Get(ctx, chargerID); err != nil {
		return CommandOutcome{}, err
	}
	return c.dispatcher.StartRemote(ctx, chargerID, c.defaultTag, c.defaultConnector)
}

// StopCharging stops the active transaction of chargerID.
func (c *Central) StopCharging(ctx context.Context, chargerID string) (CommandOutcome, error) {
	if _, err := c.chargers.Get(ctx, chargerID); err != nil {
		return CommandOutcome{}, err
	}
	tx, err := c.txs.Active(ctx, chargerID)
	if err != nil {
		return CommandOutcome{}, err
	}
	outcome, err := c.dispatcher.StopRemote(ctx, tx.ID)
	if errors.Is(err, ErrAlreadyStopped) {
		return outcome, ErrNoActiveTransaction
	}
	return outcome, err
}

// ListTransactions returns the latest transactions, newest first.
func (c *Central) ListTransactions(ctx context.Context, limit int) ([]TransactionView, error) {
	txs, err := c.txs.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]TransactionView, 0, len(txs))
	for i := range txs {
		tx := &txs[i]
		views = append(views, TransactionView{
			ID:          tx.ID,
			ChargerID:   tx.ChargerID,
			IDTag:       tx.IDTag,
			ConnectorID: tx.ConnectorID,
			StartTime:   tx.StartTime,
			StopTime:    tx.StopTime,
			MeterStart:  tx.MeterStart,
			MeterStop:   tx.MeterStop,
			EnergyWh:    tx.EnergyWh(),
			Status:      tx.Status,
			Simulated:   tx.Simulated,
		})
	}
	return views, nil
}

func (c *Central) view(charger *models.Charger) ChargerView {
	_, connected := c.sessions.Lookup(charger.ID)
	return ChargerView{
		ID:        charger.ID,
		Model:     charger.Model,
		Vendor:    charger.Vendor,
		Status:    charger.Status,
		LastSeen:  charger.LastSeen,
		Connected: connected,
	}
}
