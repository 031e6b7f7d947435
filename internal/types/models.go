// internal/types/models.go
package types

import (
	"fmt"
	"math"
)

// Action is a named category an event can be tagged with. ID 0 means "no action".
type Action struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DataType is the storage type of a property.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeInteger DataType = "integer"
	DataTypeFloat   DataType = "float"
	DataTypeBoolean DataType = "boolean"
)

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeString, DataTypeInteger, DataTypeFloat, DataTypeBoolean:
		return true
	}
	return false
}

type Property struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	DataType DataType `json:"data_type"`
}

// Event is one timestamped record for an object. Data is keyed by property id.
type Event struct {
	Timestamp int64         `json:"timestamp"`
	ObjectID  int64         `json:"object_id"`
	ActionID  int64         `json:"action_id,omitempty"`
	Data      map[int64]any `json:"data,omitempty"`
}

func NewEvent(timestamp, objectID, actionID int64) *Event {
	return &Event{
		Timestamp: timestamp,
		ObjectID:  objectID,
		ActionID:  actionID,
	}
}

// Set stores value under the given property id.
func (e *Event) Set(propertyID int64, value any) {
	if e.Data == nil {
		e.Data = make(map[int64]any)
	}
	e.Data[propertyID] = value
}

type TableStats struct {
	Events     int64 `json:"events"`
	Actions    int   `json:"actions"`
	Properties int   `json:"properties"`
	Bytes      int64 `json:"bytes"`
}

// NormalizeValue converts a decoded value into its canonical Go form
// (string, int64, float64 or bool) and reports its data type.
func NormalizeValue(v any) (any, DataType, error) {
	switch x := v.(type) {
	case string:
		return x, DataTypeString, nil
	case bool:
		return x, DataTypeBoolean, nil
	case int:
		return int64(x), DataTypeInteger, nil
	case int8:
		return int64(x), DataTypeInteger, nil
	case int16:
		return int64(x), DataTypeInteger, nil
	case int32:
		return int64(x), DataTypeInteger, nil
	case int64:
		return x, DataTypeInteger, nil
	case uint8:
		return int64(x), DataTypeInteger, nil
	case uint16:
		return int64(x), DataTypeInteger, nil
	case uint32:
		return int64(x), DataTypeInteger, nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, "", fmt.Errorf("%w: integer %d overflows int64", ErrUnsupportedValue, x)
		}
		return int64(x), DataTypeInteger, nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, "", fmt.Errorf("%w: integer %d overflows int64", ErrUnsupportedValue, x)
		}
		return int64(x), DataTypeInteger, nil
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case nil:
		return nil, "", fmt.Errorf("%w: null", ErrUnsupportedValue)
	default:
		return nil, "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// normalizeFloat rejects values that have no JSON encoding.
func normalizeFloat(f float64) (any, DataType, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, "", fmt.Errorf("%w: float %v", ErrUnsupportedValue, f)
	}
	return f, DataTypeFloat, nil
}

// Coerce converts a normalized value of type from into the property type to.
// Integers widen to floats; every other mismatch is an error.
func Coerce(v any, from, to DataType) (any, error) {
	if from == to {
		return v, nil
	}
	if from == DataTypeInteger && to == DataTypeFloat {
		return float64(v.(int64)), nil
	}
	return nil, fmt.Errorf("%w: %s value for %s property", ErrTypeMismatch, from, to)
}
