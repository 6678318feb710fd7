package domain

import (
	"strings"
	"time"
)

type SessionID string
type MessageID string

// Origin says who produced a conversation turn.
type Origin string

const (
	OriginUser   Origin = "user"
	OriginBot    Origin = "bot"
	OriginSystem Origin = "system"
)

// Priority is the urgency tier of a triage assessment.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

// ParsePriority maps a raw triage value to a known tier.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityEmergency:
		return p, true
	default:
		return "", false
	}
}

// ConnectionState is derived from the outcome of the most recent round-trip.
type ConnectionState string

const (
	ConnectionUninitialized ConnectionState = "uninitialized"
	ConnectionConnected     ConnectionState = "connected"
	ConnectionDisconnected  ConnectionState = "disconnected"
)

type Timestamp = time.Time
