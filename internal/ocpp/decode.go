package ocpp

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"

	"evcentral/internal/ocpp/protocol"
)

var validate = validator.New()

// DecodeError is a payload that does not match the action schema. Code is the
// CallError code reported back to the device.
type DecodeError struct {
	Code string
	Err  error
}

func (e *DecodeError) Error() string {
	return "ocpp: invalid payload: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode unmarshals a payload and checks its `validate` struct tags.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		code := protocol.ErrorFormationViolation
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			code = protocol.ErrorTypeConstraintViolation
		}
		return zero, &DecodeError{Code: code, Err: err}
	}

	if reflect.ValueOf(target).Kind() == reflect.Struct {
		if err := validate.Struct(target); err != nil {
			var zero T
			return zero, &DecodeError{Code: protocol.ErrorOccurrenceConstraintViolation, Err: err}
		}
	}
	return target, nil
}
