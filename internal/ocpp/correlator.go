package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evcentral/internal/ocpp/protocol"
)

const defaultCallTimeout = 30 * time.Second

// idPrefix returns the random part shared by every call id of one session.
var idPrefix = func() string {
	id := uuid.NewString()
	return id[:strings.IndexByte(id, '-')]
}

// Transmitter writes one encoded frame towards the device.
type Transmitter func(frame []byte) error

// CallObserver receives the outcome of every server-issued call.
type CallObserver interface {
	ObserveCall(action, outcome string, latency time.Duration)
}

type callOutcome struct {
	payload json.RawMessage
	err     error
}

type pendingCall struct {
	uniqueID string
	action   string
	issuedAt time.Time
	timer    *time.Timer
	done     chan callOutcome
}

// Correlator tracks server-issued calls of one charger session and matches
// inbound CallResult/CallError frames to them. At most one call is outstanding
// at a time; further calls wait for the slot.
type Correlator struct {
	chargerID string
	transmit  Transmitter
	observer  CallObserver
	logger    *zap.Logger

	slot chan struct{}

	mu      sync.Mutex
	pending map[string]*pendingCall
	prefix  string
	seq     uint64
	closed  error
}

// NewCorrelator builds a correlator for a single session. observer may be nil.
func NewCorrelator(chargerID string, transmit Transmitter, observer CallObserver, logger *zap.Logger) *Correlator {
	return &Correlator{
		chargerID: chargerID,
		transmit:  transmit,
		observer:  observer,
		logger:    logger,
		slot:      make(chan struct{}, 1),
		pending:   make(map[string]*pendingCall),
		prefix:    idPrefix(),
	}
}

// Issue sends a CALL and blocks until the device answers, the timeout elapses,
// the session closes or ctx is done. A device fault is returned as *CallError.
func (c *Correlator) Issue(ctx context.Context, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.slot }()

	call, frame, err := c.register(action, payload, timeout)
	if err != nil {
		return nil, err
	}

	if err := c.transmit(frame); err != nil {
		c.finish(call.uniqueID, callOutcome{err: fmt.Errorf("ocpp: send %s: %w", action, err)})
	}

	var out callOutcome
	select {
	case out = <-call.done:
	case <-ctx.Done():
		c.finish(call.uniqueID, callOutcome{err: ctx.Err()})
		out = <-call.done
	}

	c.observe(call, out.err)
	return out.payload, out.err
}

// Resolve completes the pending call matching msg. Unknown or late ids are
// logged and discarded; it reports whether a pending call was completed.
func (c *Correlator) Resolve(msg *Message) bool {
	var out callOutcome
	switch msg.MessageType {
	case protocol.MessageTypeCallResult:
		out.payload = msg.Payload
	case protocol.MessageTypeCallError:
		out.err = &CallError{
			Code:        msg.ErrorCode,
			Description: msg.ErrorDescription,
			Details:     decodeDetails(msg.ErrorDetails),
		}
	default:
		return false
	}

	if !c.finish(msg.UniqueID, out) {
		c.logger.Warn("discarding response for unknown call",
			zap.String("charger_id", c.chargerID),
			zap.String("unique_id", msg.UniqueID),
			zap.Int("message_type", msg.MessageType),
		)
		return false
	}
	return true
}

// Close fails every pending call with reason and rejects later calls with it.
func (c *Correlator) Close(reason error) {
	if reason == nil {
		reason = ErrConnectionClosed
	}

	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return
	}
	c.closed = reason
	calls := make([]*pendingCall, 0, len(c.pending))
	for id, call := range c.pending {
		calls = append(calls, call)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, call := range calls {
		call.timer.Stop()
		call.done <- callOutcome{err: reason}
	}
}

// Pending returns the number of outstanding calls.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) register(action string, payload interface{}, timeout time.Duration) (*pendingCall, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return nil, nil, c.closed
	}

	uniqueID := c.nextIDLocked()

	frame, err := BuildCall(uniqueID, action, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("ocpp: encode %s: %w", action, err)
	}

	call := &pendingCall{
		uniqueID: uniqueID,
		action:   action,
		issuedAt: time.Now(),
		done:     make(chan callOutcome, 1),
	}
	call.timer = time.AfterFunc(timeout, func() {
		if c.finish(uniqueID, callOutcome{err: ErrTimeout}) {
			c.logger.Warn("call timed out",
				zap.String("charger_id", c.chargerID),
				zap.String("action", action),
				zap.String("unique_id", uniqueID),
				zap.Duration("timeout", timeout),
			)
		}
	})
	c.pending[uniqueID] = call

	return call, frame, nil
}

// nextIDLocked returns prefix-seq. The sequence never repeats within a session.
func (c *Correlator) nextIDLocked() string {
	c.seq++
	return c.prefix + "-" + strconv.FormatUint(c.seq, 10)
}

// finish removes the pending call and delivers out. Only the first caller for
// a given id succeeds.
func (c *Correlator) finish(uniqueID string, out callOutcome) bool {
	c.mu.Lock()
	call, ok := c.pending[uniqueID]
	if ok {
		delete(c.pending, uniqueID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	call.timer.Stop()
	call.done <- out
	return true
}

func (c *Correlator) observe(call *pendingCall, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveCall(call.action, outcomeLabel(err), time.Since(call.issuedAt))
}

func outcomeLabel(err error) string {
	var callErr *CallError
	switch {
	case err == nil:
		return "result"
	case errors.As(err, &callErr):
		return "fault"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func decodeDetails(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var details map[string]interface{}
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil
	}
	return details
}
