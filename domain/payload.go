package domain

import (
	"encoding/json"
	"fmt"
)

// Typed payloads for each event kind. Event.Payload holds the marshaled
// form; DecodePayload recovers the typed value from the kind tag.

// MessagePayload is the payload of a message event.
type MessagePayload struct {
	MessageID string `json:"message_id"`
	Agent     string `json:"agent"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// CommunicationPayload is the payload of a communication event.
type CommunicationPayload struct {
	CommID    string `json:"comm_id"`
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Content   string `json:"content"`
}

// SystemEventPayload is the payload of a system_event event.
type SystemEventPayload struct {
	EventType string          `json:"event_type"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// PerformanceMetricPayload is the payload of a performance_metric event.
type PerformanceMetricPayload struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
}

// DecodePayload decodes an event's payload into the typed form matching
// its kind.
func DecodePayload(e *Event) (interface{}, error) {
	switch e.Kind {
	case EventKindMessage:
		var p MessagePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode message payload: %w", err)
		}
		return &p, nil
	case EventKindCommunication:
		var p CommunicationPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode communication payload: %w", err)
		}
		return &p, nil
	case EventKindSystemEvent:
		var p SystemEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode system_event payload: %w", err)
		}
		return &p, nil
	case EventKindPerformanceMetric:
		var p PerformanceMetricPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode performance_metric payload: %w", err)
		}
		return &p, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", e.Kind)
}

// Summary renders a one-line human-readable projection of the event's
// payload, used by the flattened export formats.
func Summary(e *Event) string {
	v, err := DecodePayload(e)
	if err != nil {
		return string(e.Payload)
	}
	switch p := v.(type) {
	case *MessagePayload:
		return fmt.Sprintf("[%s/%s] %s", p.Agent, p.Role, p.Content)
	case *CommunicationPayload:
		return fmt.Sprintf("%s -> %s: %s", p.FromAgent, p.ToAgent, p.Content)
	case *SystemEventPayload:
		return p.EventType
	case *PerformanceMetricPayload:
		if p.Unit != "" {
			return fmt.Sprintf("%s=%g%s", p.Metric, p.Value, p.Unit)
		}
		return fmt.Sprintf("%s=%g", p.Metric, p.Value)
	}
	return string(e.Payload)
}
