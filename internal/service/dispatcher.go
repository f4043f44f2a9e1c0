package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evcentral/internal/models"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/registry"
)

// CommandMode tells how a remote command was carried out.
type CommandMode string

const (
	ModeRemote    CommandMode = "remote"
	ModeSimulated CommandMode = "simulated"
)

// CommandOutcome is the result of a remote start or stop.
type CommandOutcome struct {
	Mode          CommandMode `json:"mode"`
	Status        string      `json:"status"`
	TransactionID int64       `json:"transactionId,omitempty"`
	Detail        string      `json:"detail"`
}

// Sessions looks up live charger sessions.
type Sessions interface {
	Lookup(chargerID string) (registry.Session, bool)
}

// CommandObserver counts remote command outcomes.
type CommandObserver interface {
	ObserveCommand(command, mode, status string)
}

// Dispatcher issues remote commands to connected chargers and simulates them
// locally for chargers without a live session.
type Dispatcher struct {
	sessions Sessions
	txs      *Transactions
	timeout  time.Duration
	observer CommandObserver
	logger   *zap.Logger
}

// NewDispatcher builds the dispatcher. observer may be nil.
func NewDispatcher(sessions Sessions, txs *Transactions, timeout time.Duration, observer CommandObserver, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		txs:      txs,
		timeout:  timeout,
		observer: observer,
		logger:   logger,
	}
}

// StartRemote starts charging on chargerID for tag.
func (d *Dispatcher) StartRemote(ctx context.Context, chargerID, idTag string, connectorID int) (CommandOutcome, error) {
	session, ok := d.sessions.Lookup(chargerID)
	if !ok {
		outcome, err := d.simulateStart(ctx, chargerID, idTag, connectorID)
		d.observe("start", outcome, err)
		return outcome, err
	}

	req := protocol.RemoteStartTransactionRequest{IdTag: idTag}
	if connectorID > 0 {
		req.ConnectorID = &connectorID
	}
	status, err := d.call(ctx, session, protocol.ActionRemoteStartTransaction, req)
	outcome := CommandOutcome{Mode: ModeRemote, Status: status}
	switch {
	case err != nil:
		outcome.Detail = err.Error()
	case status != protocol.RemoteStartStopAccepted:
		outcome.Detail = "charger rejected remote start"
		err = ErrCommandRejected
	default:
		outcome.Detail = "remote start accepted"
	}
	d.observe("start", outcome, err)
	return outcome, err
}

// StopRemote stops transactionID on its charger.
func (d *Dispatcher) StopRemote(ctx context.Context, transactionID int64) (CommandOutcome, error) {
	tx, err := d.txs.Get(ctx, transactionID)
	if err != nil {
		return CommandOutcome{}, err
	}
	if tx.Status.Terminal() {
		return CommandOutcome{}, fmt.Errorf("%w: transaction %d", ErrAlreadyStopped, tx.ID)
	}

	session, ok := d.sessions.Lookup(tx.ChargerID)
	if !ok {
		outcome, err := d.simulateStop(ctx, tx)
		d.observe("stop", outcome, err)
		return outcome, err
	}

	status, err := d.call(ctx, session, protocol.ActionRemoteStopTransaction, protocol.RemoteStopTransactionRequest{TransactionID: tx.ID})
	outcome := CommandOutcome{Mode: ModeRemote, Status: status, TransactionID: tx.ID}
	switch {
	case err != nil:
		outcome.Detail = err.Error()
	case status != protocol.RemoteStartStopAccepted:
		outcome.Detail = "charger rejected remote stop"
		err = ErrCommandRejected
	default:
		// closed now with a zero-energy placeholder; the charger's StopTransaction amends it
		outcome.Detail = "remote stop accepted"
		if _, stopErr := d.txs.Stop(ctx, StopRequest{ChargerID: tx.ChargerID, TransactionID: tx.ID, MeterStop: tx.MeterStart, Reason: models.StopReasonRemotePending}); stopErr != nil && !errors.Is(stopErr, ErrAlreadyStopped) {
			err = stopErr
			outcome.Detail = "remote stop accepted, local close failed"
		}
	}
	d.observe("stop", outcome, err)
	return outcome, err
}

func (d *Dispatcher) call(ctx context.Context, session registry.Session, action string, payload interface{}) (string, error) {
	raw, err := session.Call(ctx, action, payload, d.timeout)
	if err != nil {
		d.logger.Warn("remote command failed",
			zap.String("charger_id", session.ChargerID()),
			zap.String("action", action),
			zap.Error(err),
		)
		return "", err
	}
	var resp protocol.RemoteStartStopResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode %s response: %w", action, err)
	}
	return resp.Status, nil
}

func (d *Dispatcher) simulateStart(ctx context.Context, chargerID, idTag string, connectorID int) (CommandOutcome, error) {
	outcome := CommandOutcome{Mode: ModeSimulated}

	auth, err := d.txs.Authorize(ctx, chargerID, idTag)
	if err != nil {
		return outcome, err
	}
	if auth != AuthorizationAccepted {
		outcome.Status = string(auth)
		outcome.Detail = "authorization tag not accepted"
		return outcome, fmt.Errorf("%w: %s", ErrAuthorizationDenied, auth)
	}

	tx, err := d.txs.Start(ctx, StartRequest{
		ChargerID:   chargerID,
		IDTag:       idTag,
		ConnectorID: connectorID,
		Simulated:   true,
	})
	if err != nil {
		return outcome, err
	}
	outcome.Status = protocol.RemoteStartStopAccepted
	outcome.TransactionID = tx.ID
	outcome.Detail = "charger offline, transaction started locally"
	d.logger.Info("simulated remote start", zap.String("charger_id", chargerID), zap.Int64("transaction_id", tx.ID))
	return outcome, nil
}

func (d *Dispatcher) simulateStop(ctx context.Context, tx *models.Transaction) (CommandOutcome, error) {
	outcome := CommandOutcome{Mode: ModeSimulated, TransactionID: tx.ID}
	if _, err := d.txs.Stop(ctx, StopRequest{ChargerID: tx.ChargerID, TransactionID: tx.ID, MeterStop: tx.MeterStart, Reason: models.StopReasonSimulated}); err != nil {
		return outcome, err
	}
	outcome.Status = protocol.RemoteStartStopAccepted
	outcome.Detail = "charger offline, transaction stopped locally"
	d.logger.Info("simulated remote stop", zap.String("charger_id", tx.ChargerID), zap.Int64("transaction_id", tx.ID))
	return outcome, nil
}

func (d *Dispatcher) observe(command string, outcome CommandOutcome, err error) {
	if d.observer == nil {
		return
	}
	status := outcome.Status
	if status == "" && err != nil {
		status = "error"
	}
	mode := string(outcome.Mode)
	if mode == "" {
		mode = "none"
	}
	d.observer.ObserveCommand(command, mode, status)
}
