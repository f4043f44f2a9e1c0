package ocpp

import (
	"errors"
	"fmt"

	"evcentral/internal/ocpp/protocol"
)

var (
	// ErrMalformedFrame is wrapped by every frame decoding failure.
	ErrMalformedFrame = errors.New("ocpp: malformed frame")
	// ErrUnknownAction is returned when no handler is routed for an action.
	ErrUnknownAction = errors.New("ocpp: unknown action")
	// ErrTimeout resolves a server-issued call that was not answered in time.
	ErrTimeout = errors.New("ocpp: call timed out")
	// ErrSuperseded resolves pending calls of a session replaced by a newer one.
	ErrSuperseded = errors.New("ocpp: session superseded")
	// ErrConnectionClosed resolves pending calls of a session whose transport closed.
	ErrConnectionClosed = errors.New("ocpp: connection closed")
)

// FrameError describes a frame that could not be decoded. UniqueID is set when
// the correlation id was readable and MessageType once the type was.
type FrameError struct {
	MessageType int
	UniqueID    string
	Reason      string
}

// Response reports whether the broken frame claimed to be a CallResult or CallError.
func (e *FrameError) Response() bool {
	return e.MessageType == protocol.MessageTypeCallResult || e.MessageType == protocol.MessageTypeCallError
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedFrame.Error(), e.Reason)
}

func (e *FrameError) Unwrap() error {
	return ErrMalformedFrame
}

// CallError is a fault exchanged on the wire as a type 4 frame.
type CallError struct {
	Code        string
	Description string
	Details     map[string]interface{}
}

// NewCallError builds a CallError without details.
func NewCallError(code, description string) *CallError {
	return &CallError{Code: code, Description: description}
}

func (e *CallError) Error() string {
	return fmt.Sprintf("ocpp: %s: %s", e.Code, e.Description)
}

// AsCallError maps an arbitrary handler error to the CallError sent to the device.
func AsCallError(err error) *CallError {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return NewCallError(decodeErr.Code, decodeErr.Error())
	}
	if errors.Is(err, ErrUnknownAction) {
		return NewCallError(protocol.ErrorNotImplemented, err.Error())
	}
	if errors.Is(err, ErrMalformedFrame) {
		return NewCallError(protocol.ErrorFormationViolation, err.Error())
	}
	return NewCallError(protocol.ErrorInternalError, "internal error")
}
