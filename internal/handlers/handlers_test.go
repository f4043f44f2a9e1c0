package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evcentral/internal/models"
	"evcentral/internal/ocpp"
	"evcentral/internal/ocpp/protocol"
	"evcentral/internal/repository"
	"evcentral/internal/service"
)

type fixture struct {
	store     *repository.MemoryStore
	chargers  *service.Chargers
	txs       *service.Transactions
	processor *ocpp.Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.PutAuthTag(context.Background(), models.AuthTag{IDTag: "TAG1"}))
	logger := zap.NewNop()
	chargers := service.NewChargers(store, logger)
	txs := service.NewTransactions(store, store, nil, nil, logger)
	router := ocpp.NewRouter(Routes(Deps{Chargers: chargers, Transactions: txs, BootInterval: 10 * time.Second, Logger: logger}))
	return &fixture{
		store:     store,
		chargers:  chargers,
		txs:       txs,
		processor: ocpp.NewProcessor(router, store, nil, logger),
	}
}

// call sends one Call frame and returns the decoded reply.
func (f *fixture) call(t *testing.T, chargerID, action, payload string) *ocpp.Message {
	t.Helper()
	frame := fmt.Sprintf(`[2,"%s-%d","%s",%s]`, action, time.Now().UnixNano(), action, payload)
	out, err := f.processor.Process(context.Background(), chargerID, []byte(frame), nil)
	require.NoError(t, err)
	msg, err := ocpp.Parse(out)
	require.NoError(t, err)
	return msg
}

func decodeResult[T any](t *testing.T, msg *ocpp.Message) T {
	t.Helper()
	require.Equal(t, protocol.MessageTypeCallResult, msg.MessageType, "got %s: %s", msg.ErrorCode, msg.ErrorDescription)
	var out T
	require.NoError(t, json.Unmarshal(msg.Payload, &out))
	return out
}

func TestRoutesCoverInboundActions(t *testing.T) {
	router := ocpp.NewRouter(Routes(Deps{Logger: zap.NewNop()}))
	assert.Equal(t, []string{
		protocol.ActionAuthorize,
		protocol.ActionBootNotification,
		protocol.ActionHeartbeat,
		protocol.ActionMeterValues,
		protocol.ActionStartTransaction,
		protocol.ActionStatusNotification,
		protocol.ActionStopTransaction,
	}, router.Actions())
}

func TestBootNotification(t *testing.T) {
	f := newFixture(t)

	resp := decodeResult[protocol.BootNotificationResponse](t,
		f.call(t, "CP1", protocol.ActionBootNotification, `{"chargePointModel":"X","chargePointVendor":"Y"}`))
	assert.Equal(t, protocol.RegistrationAccepted, resp.Status)
	assert.Equal(t, 10, resp.Interval)
	assert.False(t, resp.CurrentTime.IsZero())

	charger, err := f.store.GetCharger(context.Background(), "CP1")
	require.NoError(t, err)
	assert.Equal(t, models.ChargerConnected, charger.Status)
	assert.Equal(t, "X", charger.Model)

	msg := f.call(t, "CP1", protocol.ActionBootNotification, `{"chargePointModel":"X"}`)
	assert.Equal(t, protocol.ErrorOccurrenceConstraintViolation, msg.ErrorCode)
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t)

	// answered even before boot
	decodeResult[protocol.HeartbeatResponse](t, f.call(t, "CP1", protocol.ActionHeartbeat, `{}`))

	f.call(t, "CP1", protocol.ActionBootNotification, `{"chargePointModel":"X","chargePointVendor":"Y"}`)
	resp := decodeResult[protocol.HeartbeatResponse](t, f.call(t, "CP1", protocol.ActionHeartbeat, `{}`))
	assert.False(t, resp.CurrentTime.IsZero())

	charger, err := f.store.GetCharger(context.Background(), "CP1")
	require.NoError(t, err)
	assert.Equal(t, models.ChargerAvailable, charger.Status)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)

	resp := decodeResult[protocol.AuthorizeResponse](t, f.call(t, "CP1", protocol.ActionAuthorize, `{"idTag":"TAG-UNKNOWN"}`))
	assert.Equal(t, protocol.AuthorizationInvalid, resp.IdTagInfo.Status)

	resp = decodeResult[protocol.AuthorizeResponse](t, f.call(t, "CP1", protocol.ActionAuthorize, `{"idTag":"TAG1"}`))
	assert.Equal(t, protocol.AuthorizationAccepted, resp.IdTagInfo.Status)
}

func TestStartAndStopTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.call(t, "CP1", protocol.ActionBootNotification, `{"chargePointModel":"X","chargePointVendor":"Y"}`)

	start := decodeResult[protocol.StartTransactionResponse](t,
		f.call(t, "CP1", protocol.ActionStartTransaction, `{"connectorId":1,"idTag":"TAG1","meterStart":0,"timestamp":"2024-05-01T10:00:00Z"}`))
	assert.Equal(t, protocol.AuthorizationAccepted, start.IdTagInfo.Status)
	assert.Positive(t, start.TransactionID)

	tx, err := f.store.GetTransaction(ctx, start.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStarted, tx.Status)
	charger, err := f.store.GetCharger(ctx, "CP1")
	require.NoError(t, err)
	assert.Equal(t, models.ChargerCharging, charger.Status)

	again := decodeResult[protocol.StartTransactionResponse](t,
		f.call(t, "CP1", protocol.ActionStartTransaction, `{"connectorId":1,"idTag":"TAG1","meterStart":0}`))
	assert.Equal(t, protocol.AuthorizationConcurrentTx, again.IdTagInfo.Status)

	stop := fmt.Sprintf(`{"transactionId":%d,"meterStop":1200,"idTag":"TAG1","timestamp":"2024-05-01T11:00:00Z"}`, start.TransactionID)
	resp := decodeResult[protocol.StopTransactionResponse](t, f.call(t, "CP1", protocol.ActionStopTransaction, stop))
	require.NotNil(t, resp.IdTagInfo)
	assert.Equal(t, protocol.AuthorizationAccepted, resp.IdTagInfo.Status)

	tx, err = f.store.GetTransaction(ctx, start.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStopped, tx.Status)
	assert.Equal(t, int64(1200), tx.EnergyWh())

	// duplicate stop after the transaction is already closed is acknowledged
	decodeResult[protocol.StopTransactionResponse](t, f.call(t, "CP1", protocol.ActionStopTransaction, stop))
}

func TestStartTransactionWithUnknownTag(t *testing.T) {
	f := newFixture(t)

	resp := decodeResult[protocol.StartTransactionResponse](t,
		f.call(t, "CP1", protocol.ActionStartTransaction, `{"connectorId":1,"idTag":"NOPE","meterStart":0}`))
	assert.Equal(t, protocol.AuthorizationInvalid, resp.IdTagInfo.Status)
	assert.Zero(t, resp.TransactionID)

	list, err := f.store.ListTransactions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStopUnknownTransaction(t *testing.T) {
	f := newFixture(t)

	msg := f.call(t, "CP1", protocol.ActionStopTransaction, `{"transactionId":77,"meterStop":10}`)
	assert.Equal(t, protocol.MessageTypeCallError, msg.MessageType)
	assert.Equal(t, protocol.ErrorPropertyConstraintViolation, msg.ErrorCode)
}

func TestStopFromAnotherChargerIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.call(t, "CP1", protocol.ActionBootNotification, `{"chargePointModel":"X","chargePointVendor":"Y"}`)
	f.call(t, "CP2", protocol.ActionBootNotification, `{"chargePointModel":"X","chargePointVendor":"Y"}`)

	start := decodeResult[protocol.StartTransactionResponse](t,
		f.call(t, "CP1", protocol.ActionStartTransaction, `{"connectorId":1,"idTag":"TAG1","meterStart":0}`))
	require.Positive(t, start.TransactionID)

	stop := fmt.Sprintf(`{"transactionId":%d,"meterStop":900}`, start.TransactionID)
	msg := f.call(t, "CP2", protocol.ActionStopTransaction, stop)
	assert.Equal(t, protocol.MessageTypeCallError, msg.MessageType)
	assert.Equal(t, protocol.ErrorPropertyConstraintViolation, msg.ErrorCode)

	meter := fmt.Sprintf(`{"connectorId":1,"transactionId":%d,"meterValue":[{"timestamp":"2024-05-01T10:05:00Z","sampledValue":[{"value":"1.5","unit":"kWh"}]}]}`, start.TransactionID)
	decodeResult[protocol.MeterValuesResponse](t, f.call(t, "CP2", protocol.ActionMeterValues, meter))

	tx, err := f.store.GetTransaction(ctx, start.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStarted, tx.Status)
	charger, err := f.store.GetCharger(ctx, "CP1")
	require.NoError(t, err)
	assert.Equal(t, models.ChargerCharging, charger.Status)
}

func TestStatusNotification(t *testing.T) {
	f := newFixture(t)
	f.call(t, "CP1", protocol.ActionBootNotification, `{"chargePointModel":"X","chargePointVendor":"Y"}`)

	decodeResult[protocol.StatusNotificationResponse](t,
		f.call(t, "CP1", protocol.ActionStatusNotification, `{"connectorId":1,"errorCode":"GroundFailure","status":"Faulted"}`))

	charger, err := f.store.GetCharger(context.Background(), "CP1")
	require.NoError(t, err)
	assert.Equal(t, models.ChargerFaulted, charger.Status)

	assert.Equal(t, models.ChargerCharging, chargerStatus(protocol.ConnectorSuspendedEV))
	assert.Equal(t, models.ChargerAvailable, chargerStatus(protocol.ConnectorPreparing))
}

func TestMeterValues(t *testing.T) {
	f := newFixture(t)

	decodeResult[protocol.MeterValuesResponse](t, f.call(t, "CP1", protocol.ActionMeterValues,
		`{"connectorId":1,"transactionId":3,"meterValue":[{"timestamp":"2024-05-01T10:05:00Z","sampledValue":[{"value":"1.5","unit":"kWh"}]}]}`))

	wh, at, ok := latestEnergy([]protocol.MeterValue{
		{SampledValue: []protocol.SampledValue{{Value: "20", Measurand: "Voltage"}}},
		{Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), SampledValue: []protocol.SampledValue{{Value: "1.5", Unit: "kWh"}}},
	})
	require.True(t, ok)
	assert.Equal(t, int64(1500), wh)
	assert.Equal(t, 10, at.Hour())
}

func TestFramesAreLogged(t *testing.T) {
	f := newFixture(t)
	f.call(t, "CP1", protocol.ActionHeartbeat, `{}`)

	messages := f.store.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "incoming", messages[0].Direction)
	assert.Equal(t, "outgoing", messages[1].Direction)
}
