package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evcentral/internal/models"
	"evcentral/internal/repository"
)

// ChargerStore persists charger records and their status audit trail.
type ChargerStore interface {
	CreateCharger(ctx context.Context, charger *models.Charger) error
	UpsertCharger(ctx context.Context, charger *models.Charger) error
	UpdateChargerStatus(ctx context.Context, chargerID string, status models.ChargerStatus, lastSeen time.Time) error
	GetCharger(ctx context.Context, chargerID string) (*models.Charger, error)
	ListChargers(ctx context.Context) ([]models.Charger, error)
	AppendStatus(ctx context.Context, entry models.StatusLogEntry) error
}

// Chargers owns the connectivity state machine of every charger:
//
//	Disconnected -> Connected -> {Available, Charging, Faulted, Unavailable} -> Disconnected
//
// Transitions of one charger, including their writes, are serialized.
type Chargers struct {
	store  ChargerStore
	locks  *keyedMutex
	logger *zap.Logger
	now    func() time.Time
}

// NewChargers builds the state machine on store.
func NewChargers(store ChargerStore, logger *zap.Logger) *Chargers {
	return &Chargers{
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Add registers a charger ahead of its first connection.
func (c *Chargers) Add(ctx context.Context, chargerID string) (*models.Charger, error) {
	unlock := c.locks.Lock(chargerID)
	defer unlock()

	charger := &models.Charger{
		ID:       chargerID,
		Status:   models.ChargerDisconnected,
		LastSeen: c.now(),
	}
	if err := c.store.CreateCharger(ctx, charger); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, persistence("create charger", err)
	}
	return charger, nil
}

// Boot applies the boot handshake: the charger is upserted as Connected from any state.
func (c *Chargers) Boot(ctx context.Context, chargerID, model, vendor string) (*models.Charger, error) {
	unlock := c.locks.Lock(chargerID)
	defer unlock()

	now := c.now()
	charger := &models.Charger{
		ID:       chargerID,
		Model:    model,
		Vendor:   vendor,
		Status:   models.ChargerConnected,
		LastSeen: now,
	}
	if err := c.store.UpsertCharger(ctx, charger); err != nil {
		return nil, persistence("upsert charger", err)
	}
	if err := c.appendLog(ctx, chargerID, models.ChargerConnected, now); err != nil {
		return nil, err
	}
	c.logger.Info("charger booted",
		zap.String("charger_id", chargerID),
		zap.String("model", model),
		zap.String("vendor", vendor),
	)
	return charger, nil
}

// Heartbeat refreshes last_seen. A Connected charger becomes Available; an
// operational one keeps its last reported status.
func (c *Chargers) Heartbeat(ctx context.Context, chargerID string) (*models.Charger, error) {
	return c.transition(ctx, chargerID, "heartbeat", func(current models.ChargerStatus) (models.ChargerStatus, bool) {
		switch {
		case current == models.ChargerConnected:
			return models.ChargerAvailable, true
		case current.Operational():
			return current, true
		}
		return "", false
	})
}

// ReportStatus applies an operational status reported by the charger.
func (c *Chargers) ReportStatus(ctx context.Context, chargerID string, status models.ChargerStatus) (*models.Charger, error) {
	if !status.Operational() {
		return nil, fmt.Errorf("%w: %s is not an operational status", ErrInvalidTransition, status)
	}
	return c.transition(ctx, chargerID, "status", func(current models.ChargerStatus) (models.ChargerStatus, bool) {
		if current == models.ChargerConnected || current.Operational() {
			return status, true
		}
		return "", false
	})
}

// Disconnect marks the charger Disconnected. Already disconnected chargers are left untouched.
// When orphaned is set it is consulted under the charger lock; a false result means a newer
// session has taken over and the charger is returned unchanged.
func (c *Chargers) Disconnect(ctx context.Context, chargerID string, orphaned func() bool) (*models.Charger, error) {
	unlock := c.locks.Lock(chargerID)
	defer unlock()

	charger, err := c.get(ctx, chargerID)
	if err != nil {
		return nil, err
	}
	if orphaned != nil && !orphaned() {
		return charger, nil
	}
	if charger.Status == models.ChargerDisconnected {
		return charger, nil
	}
	return c.apply(ctx, charger, models.ChargerDisconnected)
}

// Get returns the stored charger.
func (c *Chargers) Get(ctx context.Context, chargerID string) (*models.Charger, error) {
	return c.get(ctx, chargerID)
}

// List returns every known charger.
func (c *Chargers) List(ctx context.Context) ([]models.Charger, error) {
	chargers, err := c.store.ListChargers(ctx)
	if err != nil {
		return nil, persistence("list chargers", err)
	}
	return chargers, nil
}

func (c *Chargers) transition(ctx context.Context, chargerID, signal string, next func(models.ChargerStatus) (models.ChargerStatus, bool)) (*models.Charger, error) {
	unlock := c.locks.Lock(chargerID)
	defer unlock()

	charger, err := c.get(ctx, chargerID)
	if err != nil {
		return nil, err
	}

	status, ok := next(charger.Status)
	if !ok {
		c.logger.Warn("rejected charger status transition",
			zap.String("charger_id", chargerID),
			zap.String("signal", signal),
			zap.String("from", string(charger.Status)),
		)
		return charger, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, signal, charger.Status)
	}
	return c.apply(ctx, charger, status)
}

func (c *Chargers) apply(ctx context.Context, charger *models.Charger, status models.ChargerStatus) (*models.Charger, error) {
	now := c.now()
	if err := c.store.UpdateChargerStatus(ctx, charger.ID, status, now); err != nil {
		return nil, persistence("update charger status", err)
	}
	if err := c.appendLog(ctx, charger.ID, status, now); err != nil {
		return nil, err
	}
	if charger.Status != status {
		c.logger.Debug("charger status changed",
			zap.String("charger_id", charger.ID),
			zap.String("from", string(charger.Status)),
			zap.String("to", string(status)),
		)
	}
	charger.Status = status
	charger.LastSeen = now
	return charger, nil
}

func (c *Chargers) appendLog(ctx context.Context, chargerID string, status models.ChargerStatus, at time.Time) error {
	entry := models.StatusLogEntry{ChargerID: chargerID, Status: status, Timestamp: at}
	if err := c.store.AppendStatus(ctx, entry); err != nil {
		return persistence("append status log", err)
	}
	return nil
}

func (c *Chargers) get(ctx context.Context, chargerID string) (*models.Charger, error) {
	charger, err := c.store.GetCharger(ctx, chargerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrChargerNotFound
	}
	if err != nil {
		return nil, persistence("get charger", err)
	}
	return charger, nil
}
