package ocpp

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcentral/internal/ocpp/protocol"
)

func TestParseCall(t *testing.T) {
	msg, err := Parse([]byte(`[2,"19223201","BootNotification",{"chargePointVendor":"Y","chargePointModel":"X"}]`))
	require.NoError(t, err)

	assert.True(t, msg.IsCall())
	assert.Equal(t, "19223201", msg.UniqueID)
	assert.Equal(t, protocol.ActionBootNotification, msg.Action)
	assert.JSONEq(t, `{"chargePointVendor":"Y","chargePointModel":"X"}`, string(msg.Payload))
}

func TestParseCallResultAndError(t *testing.T) {
	msg, err := Parse([]byte(`[3,"abc",{"status":"Accepted"}]`))
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeCallResult, msg.MessageType)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(msg.Payload))

	msg, err = Parse([]byte(`[4,"abc","NotSupported","nope",{"hint":"x"}]`))
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeCallError, msg.MessageType)
	assert.Equal(t, "NotSupported", msg.ErrorCode)
	assert.Equal(t, "nope", msg.ErrorDescription)
	assert.JSONEq(t, `{"hint":"x"}`, string(msg.ErrorDetails))

	msg, err = Parse([]byte(`[4,"abc","GenericError",""]`))
	require.NoError(t, err)
	assert.Empty(t, msg.ErrorDetails)
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		uniqueID string
	}{
		{name: "not json", raw: `hello`},
		{name: "object", raw: `{"a":1}`},
		{name: "too short", raw: `[2,"id"]`},
		{name: "type not int", raw: `["2","id","Heartbeat",{}]`},
		{name: "id not string", raw: `[2,42,"Heartbeat",{}]`},
		{name: "empty id", raw: `[2,"","Heartbeat",{}]`},
		{name: "missing action", raw: `[2,"id-1",7,{}]`, uniqueID: "id-1"},
		{name: "call without payload", raw: `[2,"id-2","Heartbeat"]`, uniqueID: "id-2"},
		{name: "payload not object", raw: `[2,"id-3","Heartbeat",[]]`, uniqueID: "id-3"},
		{name: "unknown type", raw: `[7,"id-4","Heartbeat",{}]`, uniqueID: "id-4"},
		{name: "short error", raw: `[4,"id-5","GenericError"]`, uniqueID: "id-5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame))

			var frameErr *FrameError
			require.True(t, errors.As(err, &frameErr))
			assert.Equal(t, tc.uniqueID, frameErr.UniqueID)
		})
	}
}

func TestBuildFrames(t *testing.T) {
	frame, err := BuildCall("1", protocol.ActionRemoteStopTransaction, protocol.RemoteStopTransactionRequest{TransactionID: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"1","RemoteStopTransaction",{"transactionId":7}]`, string(frame))

	frame, err = BuildCallResult("2", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"2",{}]`, string(frame))

	frame, err = BuildCallError("3", NewCallError(protocol.ErrorNotImplemented, "unknown action"))
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"3","NotImplemented","unknown action",{}]`, string(frame))
}

func TestAsCallError(t *testing.T) {
	assert.Equal(t, protocol.ErrorNotImplemented, AsCallError(ErrUnknownAction).Code)
	assert.Equal(t, protocol.ErrorFormationViolation, AsCallError(&FrameError{Reason: "x"}).Code)
	assert.Equal(t, protocol.ErrorInternalError, AsCallError(errors.New("db down")).Code)

	custom := NewCallError(protocol.ErrorPropertyConstraintViolation, "bad")
	assert.Same(t, custom, AsCallError(custom))

	_, err := Decode[protocol.StartTransactionRequest](json.RawMessage(`{"connectorId":"one","idTag":"T"}`))
	assert.Equal(t, protocol.ErrorTypeConstraintViolation, AsCallError(err).Code)

	_, err = Decode[protocol.AuthorizeRequest](json.RawMessage(`{}`))
	assert.Equal(t, protocol.ErrorOccurrenceConstraintViolation, AsCallError(err).Code)
}
