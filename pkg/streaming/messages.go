package streaming

import (
	"encoding/json"

	"github.com/coldchain/trucksim/pkg/core"
)

// Message type constants matching the hub protocol.
const (
	TypeTelemetry          = "telemetry"
	TypeReportedProperties = "reported_properties"
	TypeDesiredProperties  = "desired_properties"
	TypeMethodRequest      = "method_request"
	TypeMethodResponse     = "method_response"
	TypeAck                = "ack"
)

// Envelope wraps all messages exchanged with the hub.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the hub's acknowledgement of a device message.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// TelemetryPayload carries one telemetry record.
type TelemetryPayload struct {
	DeviceID string               `json:"deviceId"`
	Record   core.TelemetryRecord `json:"record"`
}

// PropertiesPayload carries a full reported or desired property set.
type PropertiesPayload struct {
	DeviceID   string          `json:"deviceId,omitempty"`
	Properties core.Properties `json:"properties"`
}

// MethodRequestPayload is a direct method invocation from the hub.
// Payload is the raw method argument, e.g. "3" for GoToCustomer.
type MethodRequestPayload struct {
	RequestID string          `json:"requestId"`
	Method    string          `json:"method"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// MethodResponsePayload answers a MethodRequestPayload with the same RequestID.
type MethodResponsePayload struct {
	RequestID string          `json:"requestId"`
	Status    int             `json:"status"`
	Payload   json.RawMessage `json:"payload"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
