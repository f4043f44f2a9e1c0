package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evcentral/internal/ocpp/protocol"
)

type memoryLog struct {
	mu      sync.Mutex
	entries []string
	err     error
}

func (m *memoryLog) Save(ctx context.Context, chargerID, direction, action string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, direction+":"+action)
	return m.err
}

type resolverFunc func(msg *Message) bool

func (f resolverFunc) Resolve(msg *Message) bool { return f(msg) }

type frameCounter struct {
	results []string
}

func (f *frameCounter) ObserveFrame(action, result string) {
	f.results = append(f.results, action+"/"+result)
}

func newTestProcessor(routes Routes, log MessageLog, observer FrameObserver) *Processor {
	return NewProcessor(NewRouter(routes), log, observer, zap.NewNop())
}

func TestRouterIsFixedAtConstruction(t *testing.T) {
	routes := Routes{
		protocol.ActionHeartbeat: func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
			return nil, nil
		},
		protocol.ActionAuthorize: nil,
	}
	router := NewRouter(routes)

	routes[protocol.ActionBootNotification] = routes[protocol.ActionHeartbeat]
	assert.Equal(t, []string{protocol.ActionHeartbeat}, router.Actions())

	_, err := router.Route(context.Background(), "CP1", &Message{Action: protocol.ActionAuthorize})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestProcessCallResult(t *testing.T) {
	log := &memoryLog{}
	observer := &frameCounter{}
	var seenCharger string
	p := newTestProcessor(Routes{
		protocol.ActionHeartbeat: func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
			seenCharger = chargerID
			return map[string]string{"currentTime": "2024-01-01T00:00:00Z"}, nil
		},
	}, log, observer)

	out, err := p.Process(context.Background(), "CP1", []byte(`[2,"m1","Heartbeat",{}]`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"m1",{"currentTime":"2024-01-01T00:00:00Z"}]`, string(out))
	assert.Equal(t, "CP1", seenCharger)
	assert.Equal(t, []string{"incoming:Heartbeat", "outgoing:Heartbeat"}, log.entries)
	assert.Equal(t, []string{"Heartbeat/ok"}, observer.results)
}

func TestProcessUnknownAction(t *testing.T) {
	p := newTestProcessor(Routes{}, nil, nil)

	out, err := p.Process(context.Background(), "CP1", []byte(`[2,"m2","DataTransfer",{}]`), nil)
	require.NoError(t, err)

	msg, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeCallError, msg.MessageType)
	assert.Equal(t, "m2", msg.UniqueID)
	assert.Equal(t, protocol.ErrorNotImplemented, msg.ErrorCode)
}

func TestProcessHandlerErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{name: "call error", err: NewCallError(protocol.ErrorPropertyConstraintViolation, "unknown transaction"), code: protocol.ErrorPropertyConstraintViolation},
		{name: "decode error", err: &DecodeError{Code: protocol.ErrorFormationViolation, Err: errors.New("bad")}, code: protocol.ErrorFormationViolation},
		{name: "persistence", err: errors.New("connection refused"), code: protocol.ErrorInternalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProcessor(Routes{
				protocol.ActionStopTransaction: func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error) {
					return nil, tc.err
				},
			}, nil, nil)

			out, err := p.Process(context.Background(), "CP1", []byte(`[2,"m3","StopTransaction",{"transactionId":1}]`), nil)
			require.NoError(t, err)

			msg, err := Parse(out)
			require.NoError(t, err)
			assert.Equal(t, tc.code, msg.ErrorCode)
		})
	}
}

func TestProcessMalformedFrames(t *testing.T) {
	log := &memoryLog{err: errors.New("log down")}
	p := newTestProcessor(Routes{}, log, nil)

	out, err := p.Process(context.Background(), "CP1", []byte(`not-json`), nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Nil(t, out)

	out, err = p.Process(context.Background(), "CP1", []byte(`[2,"m4","Heartbeat",[]]`), nil)
	require.NoError(t, err)
	msg, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "m4", msg.UniqueID)
	assert.Equal(t, protocol.ErrorFormationViolation, msg.ErrorCode)
}

func TestProcessHandsResponsesToResolver(t *testing.T) {
	observer := &frameCounter{}
	p := newTestProcessor(Routes{}, nil, observer)

	var resolved []string
	resolver := resolverFunc(func(msg *Message) bool {
		resolved = append(resolved, msg.UniqueID)
		return msg.UniqueID == "known"
	})

	out, err := p.Process(context.Background(), "CP1", []byte(`[3,"known",{"status":"Accepted"}]`), resolver)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = p.Process(context.Background(), "CP1", []byte(`[4,"late","GenericError","",{}]`), resolver)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = p.Process(context.Background(), "CP1", []byte(`[3,"orphan",{}]`), nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	assert.Equal(t, []string{"known", "late"}, resolved)
	assert.Equal(t, []string{"/response", "/unmatched", "/unmatched"}, observer.results)
}

func TestProcessMalformedResponseFailsPendingCall(t *testing.T) {
	log := &memoryLog{}
	p := newTestProcessor(Routes{}, log, nil)

	var resolved []*Message
	resolver := resolverFunc(func(msg *Message) bool {
		resolved = append(resolved, msg)
		return true
	})

	out, err := p.Process(context.Background(), "CP1", []byte(`[4,"srv-1",500,"boom",{}]`), resolver)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Nil(t, out)

	require.Len(t, resolved, 1)
	assert.Equal(t, "srv-1", resolved[0].UniqueID)
	assert.Equal(t, protocol.MessageTypeCallError, resolved[0].MessageType)
	assert.Equal(t, protocol.ErrorFormationViolation, resolved[0].ErrorCode)
	assert.Equal(t, []string{"incoming:"}, log.entries)

	// a broken call with a readable id is still answered
	out, err = p.Process(context.Background(), "CP1", []byte(`[2,"m5","Heartbeat"]`), resolver)
	require.NoError(t, err)
	msg, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "m5", msg.UniqueID)
	assert.Equal(t, protocol.ErrorFormationViolation, msg.ErrorCode)
	assert.Len(t, resolved, 1)
}
