package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evcentral/internal/cache"
	"evcentral/internal/clients"
	"evcentral/internal/models"
	"evcentral/internal/repository"
)

// AuthorizationStatus is the result of checking an authorization tag.
type AuthorizationStatus string

const (
	AuthorizationAccepted AuthorizationStatus = "Accepted"
	AuthorizationBlocked  AuthorizationStatus = "Blocked"
	AuthorizationInvalid  AuthorizationStatus = "Invalid"
)

// TransactionStore persists transactions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	CloseTransaction(ctx context.Context, id int64, meterStop int64, stopTime time.Time, status models.TransactionStatus, reason string) error
	AmendStop(ctx context.Context, id int64, pendingReason string, meterStop int64, stopTime time.Time, status models.TransactionStatus, reason string) error
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	ActiveTransaction(ctx context.Context, chargerID string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error)
}

// TagStore resolves and provisions authorization tags.
type TagStore interface {
	GetAuthTag(ctx context.Context, idTag string) (*models.AuthTag, error)
	PutAuthTag(ctx context.Context, tag models.AuthTag) error
}

// ActiveCache caches the open transaction of each charger. The store stays authoritative.
type ActiveCache interface {
	Put(ctx context.Context, tx cache.ActiveTransaction) error
	Get(ctx context.Context, chargerID string) (*cache.ActiveTransaction, error)
	Delete(ctx context.Context, chargerID string) error
}

// EventPublisher receives transaction lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event clients.TransactionEvent) error
}

// StartRequest describes a transaction start.
type StartRequest struct {
	ChargerID   string
	IDTag       string
	ConnectorID int
	MeterStart  int64
	Timestamp   time.Time
	Simulated   bool
}

// StopRequest describes a transaction stop. A non-empty ChargerID must own
// the transaction.
type StopRequest struct {
	ChargerID     string
	TransactionID int64
	MeterStop     int64
	Timestamp     time.Time
	Reason        string
}

// Transactions manages the Started -> {Stopped, Failed} lifecycle.
type Transactions struct {
	store  TransactionStore
	tags   TagStore
	cache  ActiveCache
	events *eventQueue
	locks  *keyedMutex
	logger *zap.Logger
	now    func() time.Time
}

// NewTransactions builds the lifecycle manager. cache and events may be nil.
// Events are delivered in order by a background worker; call Close to stop it.
func NewTransactions(store TransactionStore, tags TagStore, cache ActiveCache, events EventPublisher, logger *zap.Logger) *Transactions {
	return &Transactions{
		store:  store,
		tags:   tags,
		cache:  cache,
		events: newEventQueue(events, logger),
		locks:  newKeyedMutex(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authorize checks tag for chargerID. Unknown tags and tags bound to another
// charger are Invalid.
func (t *Transactions) Authorize(ctx context.Context, chargerID, idTag string) (AuthorizationStatus, error) {
	tag, err := t.tags.GetAuthTag(ctx, idTag)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthorizationInvalid, nil
	}
	if err != nil {
		return "", persistence("get auth tag", err)
	}
	switch {
	case tag.Blocked:
		return AuthorizationBlocked, nil
	case tag.ChargerID != "" && tag.ChargerID != chargerID:
		return AuthorizationInvalid, nil
	}
	return AuthorizationAccepted, nil
}

// ProvisionTags creates Accepted tags that do not exist yet. Existing tags,
// blocked ones included, are left as they are.
func (t *Transactions) ProvisionTags(ctx context.Context, idTags ...string) error {
	for _, idTag := range idTags {
		if idTag == "" {
			continue
		}
		_, err := t.tags.GetAuthTag(ctx, idTag)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return persistence("get auth tag", err)
		}
		if err := t.tags.PutAuthTag(ctx, models.AuthTag{IDTag: idTag}); err != nil {
			return persistence("put auth tag", err)
		}
		t.logger.Info("authorization tag provisioned", zap.String("id_tag", idTag))
	}
	return nil
}

// Start creates a Started transaction. It fails with ErrConflictingTransaction
// while the charger has an unterminated one.
func (t *Transactions) Start(ctx context.Context, req StartRequest) (*models.Transaction, error) {
	tx, err := t.start(ctx, req)
	if err != nil {
		return tx, err
	}
	t.publish(clients.EventTransactionStarted, tx)
	return tx, nil
}

func (t *Transactions) start(ctx context.Context, req StartRequest) (*models.Transaction, error) {
	unlock := t.locks.Lock(req.ChargerID)
	defer unlock()

	active, err := t.store.ActiveTransaction(ctx, req.ChargerID)
	switch {
	case err == nil:
		return active, fmt.Errorf("%w: transaction %d on %s", ErrConflictingTransaction, active.ID, req.ChargerID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, persistence("get active transaction", err)
	}

	startTime := req.Timestamp
	if startTime.IsZero() {
		startTime = t.now()
	}
	tx := &models.Transaction{
		ChargerID:   req.ChargerID,
		IDTag:       req.IDTag,
		ConnectorID: req.ConnectorID,
		MeterStart:  req.MeterStart,
		StartTime:   startTime.UTC(),
		Status:      models.TransactionStarted,
		Simulated:   req.Simulated,
	}
	if err := t.store.CreateTransaction(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrActiveTransaction) {
			return nil, ErrConflictingTransaction
		}
		return nil, persistence("create transaction", err)
	}

	t.cachePut(ctx, tx)
	t.logger.Info("transaction started",
		zap.String("charger_id", tx.ChargerID),
		zap.Int64("transaction_id", tx.ID),
		zap.Int("connector_id", tx.ConnectorID),
		zap.Bool("simulated", tx.Simulated),
	)
	return tx, nil
}

// Stop closes a transaction. The status becomes Failed when the stop meter is
// below the start meter. A transaction closed by an accepted remote stop takes
// the charger's own reading once it arrives.
func (t *Transactions) Stop(ctx context.Context, req StopRequest) (*models.Transaction, error) {
	tx, err := t.stop(ctx, req)
	if err != nil {
		return tx, err
	}
	t.publish(clients.EventTransactionStopped, tx)
	return tx, nil
}

func (t *Transactions) stop(ctx context.Context, req StopRequest) (*models.Transaction, error) {
	tx, err := t.owned(ctx, req.ChargerID, req.TransactionID)
	if err != nil {
		return nil, err
	}

	unlock := t.locks.Lock(tx.ChargerID)
	defer unlock()

	// re-read under the charger lock
	if tx, err = t.get(ctx, req.TransactionID); err != nil {
		return nil, err
	}

	stopTime := req.Timestamp
	if stopTime.IsZero() {
		stopTime = t.now()
	}
	stopTime = stopTime.UTC()
	status := models.TransactionStopped
	if req.MeterStop < tx.MeterStart {
		status = models.TransactionFailed
	}

	if tx.Status.Terminal() {
		if tx.StopReason != models.StopReasonRemotePending || req.Reason == models.StopReasonRemotePending {
			return tx, fmt.Errorf("%w: transaction %d", ErrAlreadyStopped, tx.ID)
		}
		return t.confirmRemoteStop(ctx, tx, req.MeterStop, stopTime, status, req.Reason)
	}

	if err := t.store.CloseTransaction(ctx, tx.ID, req.MeterStop, stopTime, status, req.Reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: transaction %d", ErrAlreadyStopped, tx.ID)
		}
		return nil, persistence("close transaction", err)
	}
	applyStop(tx, req.MeterStop, stopTime, status, req.Reason)

	t.cacheDelete(ctx, tx.ChargerID)
	t.logger.Info("transaction stopped",
		zap.String("charger_id", tx.ChargerID),
		zap.Int64("transaction_id", tx.ID),
		zap.String("status", string(tx.Status)),
		zap.Int64("energy_wh", tx.EnergyWh()),
	)
	return tx, nil
}

// confirmRemoteStop replaces the placeholder stop written on an accepted
// RemoteStop with the reading reported by the charger.
func (t *Transactions) confirmRemoteStop(ctx context.Context, tx *models.Transaction, meterStop int64, stopTime time.Time, status models.TransactionStatus, reason string) (*models.Transaction, error) {
	if reason == "" {
		reason = models.StopReasonRemote
	}
	err := t.store.AmendStop(ctx, tx.ID, models.StopReasonRemotePending, meterStop, stopTime, status, reason)
	if errors.Is(err, repository.ErrNotFound) {
		return tx, fmt.Errorf("%w: transaction %d", ErrAlreadyStopped, tx.ID)
	}
	if err != nil {
		return nil, persistence("amend transaction stop", err)
	}
	applyStop(tx, meterStop, stopTime, status, reason)

	t.logger.Info("remote stop confirmed by charger",
		zap.String("charger_id", tx.ChargerID),
		zap.Int64("transaction_id", tx.ID),
		zap.String("status", string(tx.Status)),
		zap.Int64("energy_wh", tx.EnergyWh()),
	)
	return tx, nil
}

func applyStop(tx *models.Transaction, meterStop int64, stopTime time.Time, status models.TransactionStatus, reason string) {
	tx.MeterStop = &meterStop
	tx.StopTime = &stopTime
	tx.Status = status
	tx.StopReason = reason
}

// Active returns the unterminated transaction of a charger or ErrNoActiveTransaction.
func (t *Transactions) Active(ctx context.Context, chargerID string) (*models.Transaction, error) {
	if t.cache != nil {
		if cached, err := t.cache.Get(ctx, chargerID); err == nil {
			tx, err := t.store.GetTransaction(ctx, cached.TransactionID)
			if err == nil && !tx.Status.Terminal() && tx.ChargerID == chargerID {
				return tx, nil
			}
			t.cacheDelete(ctx, chargerID)
		} else if !errors.Is(err, cache.ErrMiss) {
			t.logger.Debug("active transaction cache read failed", zap.String("charger_id", chargerID), zap.Error(err))
		}
	}

	tx, err := t.store.ActiveTransaction(ctx, chargerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveTransaction
	}
	if err != nil {
		return nil, persistence("get active transaction", err)
	}
	t.cachePut(ctx, tx)
	return tx, nil
}

// Get returns a transaction by id.
func (t *Transactions) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	return t.get(ctx, id)
}

// List returns the latest transactions, newest first.
func (t *Transactions) List(ctx context.Context, limit int) ([]models.Transaction, error) {
	txs, err := t.store.ListTransactions(ctx, limit)
	if err != nil {
		return nil, persistence("list transactions", err)
	}
	return txs, nil
}

// PublishMeterValues forwards a meter sample of an open transaction owned by
// chargerID. Samples for unknown, foreign or closed transactions are refused.
func (t *Transactions) PublishMeterValues(ctx context.Context, chargerID string, transactionID int64, connectorID int, energyWh int64, at time.Time) error {
	tx, err := t.owned(ctx, chargerID, transactionID)
	if err != nil {
		return err
	}
	if tx.Status.Terminal() {
		return fmt.Errorf("%w: transaction %d", ErrAlreadyStopped, tx.ID)
	}
	t.events.enqueue(clients.TransactionEvent{
		Type:          clients.EventMeterValues,
		TransactionID: transactionID,
		ChargerID:     chargerID,
		ConnectorID:   connectorID,
		EnergyWh:      energyWh,
		Status:        string(models.TransactionStarted),
		Timestamp:     at,
	})
	return nil
}

// Flush waits until every queued event has been delivered or dropped.
func (t *Transactions) Flush() {
	t.events.flush()
}

// Close flushes and stops the event worker.
func (t *Transactions) Close() {
	t.events.close()
}

// owned returns the transaction, treating one of another charger as unknown.
func (t *Transactions) owned(ctx context.Context, chargerID string, id int64) (*models.Transaction, error) {
	tx, err := t.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if chargerID != "" && tx.ChargerID != chargerID {
		return nil, fmt.Errorf("%w: %d on %s", ErrTransactionNotFound, id, chargerID)
	}
	return tx, nil
}

func (t *Transactions) get(ctx context.Context, id int64) (*models.Transaction, error) {
	tx, err := t.store.GetTransaction(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, persistence("get transaction", err)
	}
	return tx, nil
}

func (t *Transactions) cachePut(ctx context.Context, tx *models.Transaction) {
	if t.cache == nil {
		return
	}
	err := t.cache.Put(ctx, cache.ActiveTransaction{
		TransactionID: tx.ID,
		ChargerID:     tx.ChargerID,
		ConnectorID:   tx.ConnectorID,
		IDTag:         tx.IDTag,
		MeterStart:    tx.MeterStart,
		StartTime:     tx.StartTime,
		Simulated:     tx.Simulated,
	})
	if err != nil {
		t.logger.Warn("failed to cache active transaction", zap.Int64("transaction_id", tx.ID), zap.Error(err))
	}
}

func (t *Transactions) cacheDelete(ctx context.Context, chargerID string) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Delete(ctx, chargerID); err != nil {
		t.logger.Warn("failed to evict active transaction", zap.String("charger_id", chargerID), zap.Error(err))
	}
}

func (t *Transactions) publish(eventType string, tx *models.Transaction) {
	event := clients.TransactionEvent{
		Type:          eventType,
		TransactionID: tx.ID,
		ChargerID:     tx.ChargerID,
		ConnectorID:   tx.ConnectorID,
		IDTag:         tx.IDTag,
		MeterStart:    tx.MeterStart,
		MeterStop:     tx.MeterStop,
		EnergyWh:      tx.EnergyWh(),
		Status:        string(tx.Status),
		Simulated:     tx.Simulated,
		Reason:        tx.StopReason,
		Timestamp:     tx.StartTime,
	}
	if tx.StopTime != nil {
		event.Timestamp = *tx.StopTime
	}
	t.events.enqueue(event)
}
