package ocpp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"evcentral/internal/ocpp/protocol"
)

// Message represents a decoded OCPP-J frame of any of the three kinds.
type Message struct {
	MessageType      int
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// IsCall reports whether the frame is a request.
func (m *Message) IsCall() bool {
	return m.MessageType == protocol.MessageTypeCall
}

// Parse decodes a raw frame. Failures are *FrameError values wrapping ErrMalformedFrame.
func Parse(data []byte) (*Message, error) {
	var array []json.RawMessage
	if err := json.Unmarshal(data, &array); err != nil {
		return nil, &FrameError{Reason: "frame is not a JSON array"}
	}

	if len(array) < 3 {
		return nil, &FrameError{Reason: fmt.Sprintf("frame has %d elements", len(array))}
	}

	var msgType int
	if err := json.Unmarshal(array[0], &msgType); err != nil {
		return nil, &FrameError{Reason: "message type is not an integer"}
	}

	msg := &Message{MessageType: msgType}
	if err := json.Unmarshal(array[1], &msg.UniqueID); err != nil || msg.UniqueID == "" {
		return nil, &FrameError{Reason: "unique id is not a non-empty string"}
	}

	switch msgType {
	case protocol.MessageTypeCall:
		if len(array) != 4 {
			return nil, &FrameError{MessageType: msgType, UniqueID: msg.UniqueID, Reason: "call frame must have 4 elements"}
		}
		if err := json.Unmarshal(array[2], &msg.Action); err != nil || msg.Action == "" {
			return nil, &FrameError{MessageType: msgType, UniqueID: msg.UniqueID, Reason: "action is not a non-empty string"}
		}
		if !isObject(array[3]) {
			return nil, &FrameError{MessageType: msgType, UniqueID: msg.UniqueID, Reason: "call payload is not an object"}
		}
		msg.Payload = array[3]
	case protocol.MessageTypeCallResult:
		msg.Payload = array[2]
	case protocol.MessageTypeCallError:
		if len(array) < 4 {
			return nil, &FrameError{MessageType: msgType, UniqueID: msg.UniqueID, Reason: "call error frame is incomplete"}
		}
		if err := json.Unmarshal(array[2], &msg.ErrorCode); err != nil {
			return nil, &FrameError{MessageType: msgType, UniqueID: msg.UniqueID, Reason: "error code is not a string"}
		}
		if err := json.Unmarshal(array[3], &msg.ErrorDescription); err != nil {
			return nil, &FrameError{MessageType: msgType, UniqueID: msg.UniqueID, Reason: "error description is not a string"}
		}
		if len(array) > 4 {
			msg.ErrorDetails = array[4]
		}
	default:
		return nil, &FrameError{MessageType: msgType, UniqueID: msg.UniqueID, Reason: fmt.Sprintf("unsupported message type %d", msgType)}
	}

	return msg, nil
}

// BuildCall builds a CALL frame.
func BuildCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	frame := []interface{}{protocol.MessageTypeCall, uniqueID, action, body}
	return json.Marshal(frame)
}

// BuildCallResult builds a CALLRESULT frame.
func BuildCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	frame := []interface{}{protocol.MessageTypeCallResult, uniqueID, body}
	return json.Marshal(frame)
}

// BuildCallError builds a CALLERROR frame.
func BuildCallError(uniqueID string, callErr *CallError) ([]byte, error) {
	details := callErr.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	frame := []interface{}{protocol.MessageTypeCallError, uniqueID, callErr.Code, callErr.Description, details}
	return json.Marshal(frame)
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage(`{}`), nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
