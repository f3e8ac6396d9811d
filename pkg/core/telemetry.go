// pkg/core/telemetry.go
package core

import (
	"encoding/json"
	"time"
)

// NoEvent is the event text carried by telemetry when nothing happened
// since the previous emission.
const NoEvent = "none"

// TelemetryRecord is an immutable snapshot of the truck taken by the
// telemetry emitter. Field names match the telemetry schema consumed by the
// dispatch dashboard.
type TelemetryRecord struct {
	TruckID             string    `json:"TruckID,omitempty"`
	Time                time.Time `json:"Time"`
	ContentsTemperature float64   `json:"ContentsTemperature"`
	TruckState          string    `json:"TruckState"`
	CoolingSystemState  string    `json:"CoolingSystemState"`
	ContentsState       string    `json:"ContentsState"`
	Location            Location  `json:"Location"`
	Event               string    `json:"Event"`
	CargoCondition      float64   `json:"CargoCondition"`
	Alarm               bool      `json:"Alarm"`
}

// HasEvent reports whether the record carries a one-shot event.
func (r TelemetryRecord) HasEvent() bool {
	return r.Event != "" && r.Event != NoEvent
}

// MethodResponse is the acknowledgement returned to the command channel.
// Status follows HTTP semantics (200 accepted, 400 rejected).
type MethodResponse struct {
	Status  int             `json:"status"`
	Payload json.RawMessage `json:"payload"`

	// Err classifies a rejection for logging and metrics. It never crosses
	// the transport.
	Err error `json:"-"`
}

// OK reports whether the command was accepted.
func (r MethodResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// ResultBody builds the {"result": "..."} acknowledgement body.
func ResultBody(result string) json.RawMessage {
	data, err := json.Marshal(struct {
		Result string `json:"result"`
	}{Result: result})
	if err != nil {
		return json.RawMessage(`{"result":""}`)
	}
	return data
}

// Properties is a set of device twin properties keyed by name.
type Properties map[string]any

// Clone returns a shallow copy of p.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Reported property keys.
const (
	PropertyTruckID           = "TruckID"
	PropertyConditionThreshold = "cargoConditionThreshold"
)
