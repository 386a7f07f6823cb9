package delivery

import (
	"encoding/json"
	"time"

	"github.com/xraph/herald/id"
)

// Envelope is the JSON body of every delivery.
type Envelope struct {
	ID        id.ID           `json:"id"`
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope builds the envelope for one attempt. A nil payload is sent
// as JSON null.
func NewEnvelope(eventID id.ID, eventType string, at time.Time, payload json.RawMessage) Envelope {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:        eventID,
		Event:     eventType,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Data:      payload,
	}
}

// Body serializes the envelope. The result is the exact byte sequence that
// is signed and sent.
func (e Envelope) Body() ([]byte, error) {
	return json.Marshal(e)
}
