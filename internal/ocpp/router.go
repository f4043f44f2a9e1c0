package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"evcentral/internal/ocpp/protocol"
)

// HandlerFunc processes a CALL payload and returns the CALLRESULT body.
type HandlerFunc func(ctx context.Context, chargerID string, payload json.RawMessage) (interface{}, error)

// Routes is the action → handler table.
type Routes map[string]HandlerFunc

// Router dispatches OCPP actions to handlers. The table is fixed at construction.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter copies routes into an immutable dispatch table.
func NewRouter(routes Routes) *Router {
	handlers := make(map[string]HandlerFunc, len(routes))
	for action, handler := range routes {
		if handler != nil {
			handlers[action] = handler
		}
	}
	return &Router{handlers: handlers}
}

// Actions lists routed actions in lexical order.
func (r *Router) Actions() []string {
	actions := make([]string, 0, len(r.handlers))
	for action := range r.handlers {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// Route executes handler for message.
func (r *Router) Route(ctx context.Context, chargerID string, msg *Message) (interface{}, error) {
	handler, ok := r.handlers[msg.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, msg.Action)
	}
	return handler(ctx, chargerID, msg.Payload)
}

// MessageLog persists raw frames.
type MessageLog interface {
	Save(ctx context.Context, chargerID, direction, action string, payload []byte) error
}

// Resolver completes server-issued calls from inbound CallResult/CallError frames.
type Resolver interface {
	Resolve(msg *Message) bool
}

// FrameObserver receives the result of every inbound frame.
type FrameObserver interface {
	ObserveFrame(action, result string)
}

// Processor ties together parsing, routing, correlation and response encoding.
type Processor struct {
	router   *Router
	logRepo  MessageLog
	observer FrameObserver
	logger   *zap.Logger
}

// NewProcessor builds Processor. logRepo and observer may be nil.
func NewProcessor(router *Router, logRepo MessageLog, observer FrameObserver, logger *zap.Logger) *Processor {
	return &Processor{
		router:   router,
		logRepo:  logRepo,
		observer: observer,
		logger:   logger,
	}
}

// Process handles one inbound frame and returns the frame to send back, if any.
// A returned error means the frame was dropped; the session stays open.
func (p *Processor) Process(ctx context.Context, chargerID string, raw []byte, resolver Resolver) ([]byte, error) {
	msg, err := Parse(raw)
	if err != nil {
		p.save(ctx, chargerID, "incoming", "", raw)
		p.observe("", "malformed")
		var frameErr *FrameError
		if !errors.As(err, &frameErr) || frameErr.UniqueID == "" {
			return nil, err
		}
		if frameErr.Response() {
			// responses are never answered; fail the pending call instead of letting it time out
			if resolver != nil {
				resolver.Resolve(&Message{
					MessageType:      protocol.MessageTypeCallError,
					UniqueID:         frameErr.UniqueID,
					ErrorCode:        protocol.ErrorFormationViolation,
					ErrorDescription: frameErr.Reason,
				})
			}
			return nil, err
		}
		return p.reply(ctx, chargerID, "", frameErr.UniqueID, nil, AsCallError(err))
	}

	p.save(ctx, chargerID, "incoming", msg.Action, raw)

	if !msg.IsCall() {
		matched := resolver != nil && resolver.Resolve(msg)
		if matched {
			p.observe("", "response")
		} else {
			p.observe("", "unmatched")
		}
		return nil, nil
	}

	result, err := p.router.Route(ctx, chargerID, msg)
	if err != nil {
		callErr := AsCallError(err)
		p.logger.Warn("ocpp handler failed",
			zap.String("charger_id", chargerID),
			zap.String("action", msg.Action),
			zap.String("error_code", callErr.Code),
			zap.Error(err),
		)
		p.observe(msg.Action, callErr.Code)
		return p.reply(ctx, chargerID, msg.Action, msg.UniqueID, nil, callErr)
	}

	p.observe(msg.Action, "ok")
	return p.reply(ctx, chargerID, msg.Action, msg.UniqueID, result, nil)
}

func (p *Processor) reply(ctx context.Context, chargerID, action, uniqueID string, result interface{}, callErr *CallError) ([]byte, error) {
	var (
		frame []byte
		err   error
	)
	if callErr != nil {
		frame, err = BuildCallError(uniqueID, callErr)
	} else {
		frame, err = BuildCallResult(uniqueID, result)
	}
	if err != nil {
		p.logger.Error("encode ocpp response failed", zap.String("action", action), zap.Error(err))
		return nil, err
	}
	p.save(ctx, chargerID, "outgoing", action, frame)
	return frame, nil
}

func (p *Processor) save(ctx context.Context, chargerID, direction, action string, payload []byte) {
	if p.logRepo == nil {
		return
	}
	if err := p.logRepo.Save(ctx, chargerID, direction, action, payload); err != nil {
		p.logger.Debug("failed to store ocpp message", zap.String("charger_id", chargerID), zap.Error(err))
	}
}

func (p *Processor) observe(action, result string) {
	if p.observer != nil {
		p.observer.ObserveFrame(action, result)
	}
}
