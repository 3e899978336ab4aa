package main

import (
	"encoding/json"
	"fmt"
)

// Event types emitted by the sensor daemon, one JSON object per FIFO line.
const (
	EventHeartbeat    = "Heartbeat"
	EventLidOpened    = "LidOpened"
	EventLidClosed    = "LidClosed"
	EventLightAnomaly = "LightAnomaly"
)

// TamperEvent is the wire format of a single sensor event.
type TamperEvent struct {
	EventType  string  `json:"event_type"`
	Lux        float64 `json:"lux"`
	Confidence uint8   `json:"confidence"`
}

// parseEvent decodes one FIFO line. Unknown event types are rejected so a
// compromised sensor cannot smuggle inputs the state table does not name.
func parseEvent(line []byte) (TamperEvent, error) {
	var ev TamperEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return TamperEvent{}, fmt.Errorf("malformed event line: %w", err)
	}

	switch ev.EventType {
	case EventHeartbeat, EventLidOpened, EventLidClosed, EventLightAnomaly:
		return ev, nil
	default:
		return TamperEvent{}, fmt.Errorf("unknown event type %q", ev.EventType)
	}
}

// inputFor maps a sensor event to its machine input.
func inputFor(ev TamperEvent) InputKind {
	switch ev.EventType {
	case EventLidClosed:
		return InputLidClosed
	case EventLidOpened:
		return InputLidOpened
	case EventLightAnomaly:
		return InputLightAnomaly
	default:
		return InputHeartbeat
	}
}
