package validation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kjstillabower/launch-dashboard/internal/models"
)

// Shape names the layout of a status payload.
type Shape string

const (
	// ShapeDays is the current layout: an array of {data, weather} entries.
	ShapeDays Shape = "days"
	// ShapePair is the legacy layout: a two-element [flight, weather] array.
	ShapePair Shape = "pair"
	// ShapeUnknown is anything else.
	ShapeUnknown Shape = "unknown"
)

// ErrPayloadShape is returned when a status payload matches neither known layout.
var ErrPayloadShape = errors.New("status payload has unexpected shape")

// Keys that must be present and non-null for an object to count as a flight or
// a weather record.
const (
	flightKey  = "max_velocity"
	weatherKey = "temperature"
)

// CheckStatusPayload classifies raw upstream JSON. It never modifies the payload.
// Returns ShapeUnknown with an error wrapping ErrPayloadShape when no layout matches.
// Empty arrays and null or empty records match no layout.
func CheckStatusPayload(raw []byte) (Shape, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ShapeUnknown, fmt.Errorf("%w: not an array of objects", ErrPayloadShape)
	}
	if len(items) == 0 {
		return ShapeUnknown, fmt.Errorf("%w: empty array", ErrPayloadShape)
	}
	if isDays(raw, items) {
		return ShapeDays, nil
	}
	if isPair(items) {
		return ShapePair, nil
	}
	return ShapeUnknown, fmt.Errorf("%w: %d entries match neither days nor pair layout", ErrPayloadShape, len(items))
}

func isDays(raw []byte, items []map[string]json.RawMessage) bool {
	for _, item := range items {
		if !objectWith(item["data"], flightKey) || !objectWith(item["weather"], weatherKey) {
			return false
		}
	}
	var days models.Data
	return json.Unmarshal(raw, &days) == nil && len(days) == len(items)
}

func isPair(items []map[string]json.RawMessage) bool {
	if len(items) != 2 || !hasValue(items[0], flightKey) || !hasValue(items[1], weatherKey) {
		return false
	}
	var flight models.FlightData
	var weather models.WeatherData
	a, _ := json.Marshal(items[0])
	b, _ := json.Marshal(items[1])
	return json.Unmarshal(a, &flight) == nil && json.Unmarshal(b, &weather) == nil
}

// objectWith reports whether raw is a JSON object holding a non-null key.
// A missing value or a literal null decodes to a nil map.
func objectWith(raw json.RawMessage, key string) bool {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return false
	}
	return hasValue(fields, key)
}

func hasValue(fields map[string]json.RawMessage, key string) bool {
	v, ok := fields[key]
	return ok && string(v) != "null"
}
