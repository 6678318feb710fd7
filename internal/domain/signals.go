package domain

import "fmt"

// Recognized keys of a fragment's custom payload.
const (
	KeyTriagePriority       = "triage_priority"
	KeyTriageRecommendation = "triage_recommendation"
	KeyHandoverInitiated    = "handover_initiated"
	KeyAppointmentConfirmed = "appointment_confirmed"
	KeyAppointmentID        = "appointment_id"
)

// CustomData is the open custom payload attached to a fragment.
// Unknown keys are kept but never interpreted.
type CustomData map[string]any

// Has reports whether key is present, whatever its value.
func (c CustomData) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// String returns the value under key when it is a string.
func (c CustomData) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Text formats the value under key for display. Missing keys yield "".
func (c CustomData) Text(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Truthy applies loose truthiness: false, nil, "", and zero numbers are false,
// everything else (including empty maps and lists) is true.
func (c CustomData) Truthy(key string) bool {
	v, ok := c[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case uint64:
		return t != 0
	default:
		return true
	}
}

// Clone returns a shallow copy.
func (c CustomData) Clone() CustomData {
	if c == nil {
		return nil
	}
	out := make(CustomData, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// SignalKind names an out-of-band event raised by a conversation.
type SignalKind string

const (
	SignalTriageUpdated        SignalKind = "triage_updated"
	SignalHandoverInitiated    SignalKind = "handover_initiated"
	SignalAppointmentConfirmed SignalKind = "appointment_confirmed"
	SignalDispatchFailed       SignalKind = "dispatch_failed"
)

// Signal is published to external collaborators (operator desks, telemetry).
type Signal struct {
	Kind      SignalKind
	SessionID SessionID
	At        Timestamp
	Data      map[string]any
}
