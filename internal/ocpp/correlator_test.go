package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evcentral/internal/ocpp/protocol"
)

type fakeWire struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
}

func (f *fakeWire) transmit(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeWire) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeWire) uniqueIDAt(t *testing.T, index int) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.frames), index)
	msg, err := Parse(f.frames[index])
	require.NoError(t, err)
	return msg.UniqueID
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveCall(action, outcome string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

type issueResult struct {
	payload json.RawMessage
	err     error
}

func issueAsync(c *Correlator, ctx context.Context, timeout time.Duration) <-chan issueResult {
	ch := make(chan issueResult, 1)
	go func() {
		payload, err := c.Issue(ctx, protocol.ActionRemoteStopTransaction, protocol.RemoteStopTransactionRequest{TransactionID: 1}, timeout)
		ch <- issueResult{payload: payload, err: err}
	}()
	return ch
}

func receive(t *testing.T, ch <-chan issueResult) issueResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(time.Second):
		t.Fatalf("call did not resolve")
		return issueResult{}
	}
}

func TestCorrelatorResolvesMatchingResult(t *testing.T) {
	wire := &fakeWire{}
	observer := &recordingObserver{}
	c := NewCorrelator("CP1", wire.transmit, observer, zap.NewNop())

	ch := issueAsync(c, context.Background(), time.Second)
	waitFor(t, 200*time.Millisecond, func() bool { return wire.count() == 1 })

	id := wire.uniqueIDAt(t, 0)
	assert.False(t, c.Resolve(&Message{MessageType: protocol.MessageTypeCallResult, UniqueID: "someone-else", Payload: json.RawMessage(`{}`)}))
	assert.Equal(t, 1, c.Pending())

	assert.True(t, c.Resolve(&Message{MessageType: protocol.MessageTypeCallResult, UniqueID: id, Payload: json.RawMessage(`{"status":"Accepted"}`)}))

	res := receive(t, ch)
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(res.payload))
	assert.Equal(t, 0, c.Pending())

	// a duplicate response for the same id is late and discarded
	assert.False(t, c.Resolve(&Message{MessageType: protocol.MessageTypeCallResult, UniqueID: id, Payload: json.RawMessage(`{}`)}))
	assert.Equal(t, []string{"result"}, observer.all())
}

func TestCorrelatorReturnsDeviceFault(t *testing.T) {
	wire := &fakeWire{}
	c := NewCorrelator("CP1", wire.transmit, nil, zap.NewNop())

	ch := issueAsync(c, context.Background(), time.Second)
	waitFor(t, 200*time.Millisecond, func() bool { return wire.count() == 1 })

	require.True(t, c.Resolve(&Message{
		MessageType:      protocol.MessageTypeCallError,
		UniqueID:         wire.uniqueIDAt(t, 0),
		ErrorCode:        protocol.ErrorNotSupported,
		ErrorDescription: "no remote stop",
		ErrorDetails:     json.RawMessage(`{"reason":"firmware"}`),
	}))

	res := receive(t, ch)
	var callErr *CallError
	require.True(t, errors.As(res.err, &callErr))
	assert.Equal(t, protocol.ErrorNotSupported, callErr.Code)
	assert.Equal(t, "firmware", callErr.Details["reason"])
}

func TestCorrelatorTimeoutThenLateResponse(t *testing.T) {
	wire := &fakeWire{}
	c := NewCorrelator("CP1", wire.transmit, nil, zap.NewNop())

	res := receive(t, issueAsync(c, context.Background(), 20*time.Millisecond))
	assert.ErrorIs(t, res.err, ErrTimeout)
	assert.Equal(t, 0, c.Pending())

	assert.False(t, c.Resolve(&Message{MessageType: protocol.MessageTypeCallResult, UniqueID: wire.uniqueIDAt(t, 0), Payload: json.RawMessage(`{}`)}))
}

func TestCorrelatorSingleOutstandingCall(t *testing.T) {
	wire := &fakeWire{}
	c := NewCorrelator("CP1", wire.transmit, nil, zap.NewNop())

	first := issueAsync(c, context.Background(), time.Second)
	waitFor(t, 200*time.Millisecond, func() bool { return wire.count() == 1 })

	second := issueAsync(c, context.Background(), time.Second)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, wire.count(), "second call must queue behind the first")

	require.True(t, c.Resolve(&Message{MessageType: protocol.MessageTypeCallResult, UniqueID: wire.uniqueIDAt(t, 0), Payload: json.RawMessage(`{}`)}))
	require.NoError(t, receive(t, first).err)

	waitFor(t, 200*time.Millisecond, func() bool { return wire.count() == 2 })
	secondID := wire.uniqueIDAt(t, 1)
	assert.NotEqual(t, wire.uniqueIDAt(t, 0), secondID)

	require.True(t, c.Resolve(&Message{MessageType: protocol.MessageTypeCallResult, UniqueID: secondID, Payload: json.RawMessage(`{}`)}))
	require.NoError(t, receive(t, second).err)
}

func TestCorrelatorCloseSupersedesPendingAndQueued(t *testing.T) {
	wire := &fakeWire{}
	observer := &recordingObserver{}
	c := NewCorrelator("CP1", wire.transmit, observer, zap.NewNop())

	first := issueAsync(c, context.Background(), time.Second)
	waitFor(t, 200*time.Millisecond, func() bool { return wire.count() == 1 })
	second := issueAsync(c, context.Background(), time.Second)

	c.Close(ErrSuperseded)

	assert.ErrorIs(t, receive(t, first).err, ErrSuperseded)
	assert.ErrorIs(t, receive(t, second).err, ErrSuperseded)
	assert.Equal(t, 1, wire.count())

	// closing twice keeps the first reason
	c.Close(ErrConnectionClosed)
	_, err := c.Issue(context.Background(), protocol.ActionRemoteStartTransaction, nil, time.Second)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, []string{"superseded"}, observer.all())
}

func TestCorrelatorContextCancel(t *testing.T) {
	wire := &fakeWire{}
	c := NewCorrelator("CP1", wire.transmit, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	ch := issueAsync(c, ctx, time.Second)
	waitFor(t, 200*time.Millisecond, func() bool { return wire.count() == 1 })
	cancel()

	assert.ErrorIs(t, receive(t, ch).err, context.Canceled)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelatorSendFailure(t *testing.T) {
	wire := &fakeWire{writeErr: errors.New("boom")}
	c := NewCorrelator("CP1", wire.transmit, nil, zap.NewNop())

	_, err := c.Issue(context.Background(), protocol.ActionRemoteStartTransaction, nil, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelatorIDsUniqueForSessionLifetime(t *testing.T) {
	previous := idPrefix
	prefixes := []string{"a1b2", "a1b2"}
	idPrefix = func() string {
		p := prefixes[0]
		prefixes = prefixes[1:]
		return p
	}
	t.Cleanup(func() { idPrefix = previous })

	wire := &fakeWire{}
	c := NewCorrelator("CP1", wire.transmit, nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		ch := issueAsync(c, context.Background(), time.Second)
		waitFor(t, 200*time.Millisecond, func() bool { return wire.count() == i+1 })
		require.True(t, c.Resolve(&Message{MessageType: protocol.MessageTypeCallResult, UniqueID: wire.uniqueIDAt(t, i), Payload: json.RawMessage(`{}`)}))
		require.NoError(t, receive(t, ch).err)
	}

	assert.Equal(t, "a1b2-1", wire.uniqueIDAt(t, 0))
	assert.Equal(t, "a1b2-2", wire.uniqueIDAt(t, 1))
	assert.Equal(t, "a1b2-3", wire.uniqueIDAt(t, 2))

	// a late answer to an id already used is not matched by a new session
	other := NewCorrelator("CP1", (&fakeWire{}).transmit, nil, zap.NewNop())
	assert.False(t, other.Resolve(&Message{MessageType: protocol.MessageTypeCallResult, UniqueID: "a1b2-1", Payload: json.RawMessage(`{}`)}))
}

func TestCorrelatorIDPrefixIsShort(t *testing.T) {
	prefix := idPrefix()
	assert.Len(t, prefix, 8)
	assert.NotEqual(t, prefix, idPrefix())
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
