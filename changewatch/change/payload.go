package change

import (
	"encoding/json"
	"time"
)

// EventContentChange is the event name carried by every notification.
const EventContentChange = "content_change_detected"

// Payload is the JSON body POSTed to the configured endpoint.
type Payload struct {
	Event    string   `json:"event"`
	Data     Record   `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// Metadata identifies the pipeline that produced a notification.
type Metadata struct {
	SourceAgent       string `json:"sourceAgent"`
	DispatchTimestamp string `json:"dispatchTimestamp"` // ISO-8601, UTC
	PipelineVersion   string `json:"pipelineVersion"`
}

// NewPayload wraps a record for delivery at the given instant.
func NewPayload(rec Record, agent, version string, at time.Time) Payload {
	return Payload{
		Event: EventContentChange,
		Data:  rec,
		Metadata: Metadata{
			SourceAgent:       agent,
			DispatchTimestamp: at.UTC().Format(time.RFC3339Nano),
			PipelineVersion:   version,
		},
	}
}

// MarshalPayload serialises a Payload to JSON. Nil match lists are emitted
// as empty arrays so receivers never have to handle null.
func MarshalPayload(p *Payload) ([]byte, error) {
	if p.Data.MatchedKeywords == nil {
		p.Data.MatchedKeywords = []string{}
	}
	if p.Data.MatchedSymbols == nil {
		p.Data.MatchedSymbols = []string{}
	}
	return json.Marshal(p)
}

// UnmarshalPayload deserialises a Payload from JSON.
func UnmarshalPayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
