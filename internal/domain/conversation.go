package domain

// Message represents a single turn in a conversation timeline (user, bot or system)
type Message struct {
	ID        MessageID
	SessionID SessionID
	// Seq is the insertion position within the session, starting at 1.
	Seq       int64
	Origin    Origin
	Body      string
	CreatedAt Timestamp

	Buttons    []Button
	Attachment Attachment
	Flags      MessageFlags

	// Data carries the raw custom payload for messages built from a signal
	// (e.g. appointment confirmations) so the renderer can show details.
	Data CustomData
}

// MessageFlags mark special messages. At most one is set in normal operation.
type MessageFlags struct {
	IsError       bool
	IsHandover    bool
	IsAppointment bool
}

// Button is an action attached to a single bot message.
type Button struct {
	Label   string
	Payload string
}

// QuickReply is a short-cut action offered for the next user turn.
type QuickReply struct {
	Label   string
	Payload string
}

// TriageStatus is the latest urgency assessment. A newer one replaces it wholesale.
type TriageStatus struct {
	Priority       Priority
	Recommendation string
	UpdatedAt      Timestamp
}

// Session is the identity of one conversation with the dialogue server.
type Session struct {
	ID        SessionID
	CreatedAt Timestamp
	UpdatedAt Timestamp
	EndedAt   *Timestamp
}

// Fragment is one element of the dialogue server's response batch.
// Any subset of the fields may be set.
type Fragment struct {
	Text       string
	Buttons    []Button
	Attachment Attachment

	// QuickReplies is nil when the fragment carries no quick replies and
	// non-nil (possibly empty) when it does.
	QuickReplies []QuickReply

	// Custom is nil when the fragment carries no custom payload.
	Custom CustomData
}

// IsEmpty reports whether the fragment has no visible or side-channel effect.
func (f Fragment) IsEmpty() bool {
	return f.Text == "" && f.QuickReplies == nil && f.Custom == nil
}
