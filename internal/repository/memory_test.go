package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcentral/internal/models"
)

func TestMemoryChargers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreateCharger(ctx, &models.Charger{ID: "CP2", Status: models.ChargerDisconnected}))
	assert.ErrorIs(t, store.CreateCharger(ctx, &models.Charger{ID: "CP2"}), ErrAlreadyExists)

	require.NoError(t, store.UpsertCharger(ctx, &models.Charger{ID: "CP1", Model: "X", Vendor: "Y", Status: models.ChargerConnected}))

	seen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateChargerStatus(ctx, "CP1", models.ChargerAvailable, seen))
	assert.ErrorIs(t, store.UpdateChargerStatus(ctx, "nope", models.ChargerAvailable, seen), ErrNotFound)

	c, err := store.GetCharger(ctx, "CP1")
	require.NoError(t, err)
	assert.Equal(t, models.ChargerAvailable, c.Status)
	assert.Equal(t, seen, c.LastSeen)
	assert.Equal(t, "X", c.Model)

	list, err := store.ListChargers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "CP1", list[0].ID)
}

func TestMemoryTransactions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := &models.Transaction{ChargerID: "CP1", IDTag: "TAG1", ConnectorID: 1, Status: models.TransactionStarted, StartTime: time.Now()}
	require.NoError(t, store.CreateTransaction(ctx, first))
	assert.Equal(t, int64(1), first.ID)

	assert.ErrorIs(t, store.CreateTransaction(ctx, &models.Transaction{ChargerID: "CP1"}), ErrActiveTransaction)

	active, err := store.ActiveTransaction(ctx, "CP1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, store.CloseTransaction(ctx, first.ID, 1500, time.Now(), models.TransactionStopped, "Local"))
	assert.ErrorIs(t, store.CloseTransaction(ctx, first.ID, 1500, time.Now(), models.TransactionStopped, ""), ErrNotFound)

	_, err = store.ActiveTransaction(ctx, "CP1")
	assert.ErrorIs(t, err, ErrNotFound)

	closed, err := store.GetTransaction(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStopped, closed.Status)
	assert.Equal(t, int64(1500), closed.EnergyWh())

	second := &models.Transaction{ChargerID: "CP1", Status: models.TransactionStarted}
	require.NoError(t, store.CreateTransaction(ctx, second))

	list, err := store.ListTransactions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestMemoryStatusLogAndTags(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.AppendStatus(ctx, models.StatusLogEntry{ChargerID: "CP1", Status: models.ChargerConnected}))
	require.NoError(t, store.AppendStatus(ctx, models.StatusLogEntry{ChargerID: "CP2", Status: models.ChargerConnected}))
	require.NoError(t, store.AppendStatus(ctx, models.StatusLogEntry{ChargerID: "CP1", Status: models.ChargerAvailable}))

	entries, err := store.ListStatus(ctx, "CP1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ChargerAvailable, entries[0].Status)

	_, err = store.GetAuthTag(ctx, "TAG-UNKNOWN")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutAuthTag(ctx, models.AuthTag{IDTag: "TAG1", Name: "fleet"}))
	tag, err := store.GetAuthTag(ctx, "TAG1")
	require.NoError(t, err)
	assert.Equal(t, "fleet", tag.Name)

	require.NoError(t, store.Save(ctx, "CP1", "incoming", "Heartbeat", []byte(`[2,"1","Heartbeat",{}]`)))
	assert.Len(t, store.Messages(), 1)
}
