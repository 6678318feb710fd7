package conversation

import (
	"fmt"

	"github.com/PabloGalante/carebot/internal/domain"
)

// signalHandlers each react to one recognized key of a custom payload. They run
// in order and independently; one payload may trigger several.
var signalHandlers = []func(c *Conversation, data domain.CustomData){
	(*Conversation).applyTriage,
	(*Conversation).applyHandover,
	(*Conversation).applyAppointment,
}

// applyFragment is the insertion step for one fragment of a batch.
func (c *Conversation) applyFragment(index int, f domain.Fragment) {
	if f.IsEmpty() {
		c.log.Debug("skipping empty fragment", "index", index)
		return
	}

	c.log.Debug("inserting fragment", "index", index,
		"has_text", f.Text != "", "quick_replies", f.QuickReplies != nil, "custom", f.Custom != nil)

	// Buttons and attachments only ride along with text.
	if f.Text != "" {
		c.appendMessage(domain.Message{
			Origin:     domain.OriginBot,
			Body:       f.Text,
			Buttons:    append([]domain.Button(nil), f.Buttons...),
			Attachment: f.Attachment,
		})
	}

	if f.QuickReplies != nil {
		c.state.QuickReplies = append(make([]domain.QuickReply, 0, len(f.QuickReplies)), f.QuickReplies...)
		c.emitState()
	}

	if f.Custom != nil {
		c.interpret(f.Custom)
	}
}

func (c *Conversation) interpret(data domain.CustomData) {
	for _, h := range signalHandlers {
		h(c, data)
	}
}

func (c *Conversation) applyTriage(data domain.CustomData) {
	if !data.Has(domain.KeyTriagePriority) {
		return
	}

	raw := data.Text(domain.KeyTriagePriority)
	priority, ok := domain.ParsePriority(raw)
	if !ok {
		c.log.Warn("ignoring unknown triage priority", "priority", raw)
		return
	}

	c.state.Triage = &domain.TriageStatus{
		Priority:       priority,
		Recommendation: data.Text(domain.KeyTriageRecommendation),
		UpdatedAt:      c.now(),
	}
	c.emitState()
	c.log.Info("triage updated", "priority", priority)

	c.publish(domain.SignalTriageUpdated, map[string]any{
		"priority":       string(priority),
		"recommendation": c.state.Triage.Recommendation,
	})
}

// applyHandover is sticky: nothing clears the flag, and repeated signals each
// append another announcement.
func (c *Conversation) applyHandover(data domain.CustomData) {
	if !data.Truthy(domain.KeyHandoverInitiated) {
		return
	}

	c.state.Handover = true
	c.appendMessage(domain.Message{
		Origin: domain.OriginSystem,
		Body:   handoverText,
		Flags:  domain.MessageFlags{IsHandover: true},
	})
	c.log.Info("handover initiated")
	c.publish(domain.SignalHandoverInitiated, nil)
}

func (c *Conversation) applyAppointment(data domain.CustomData) {
	if !data.Truthy(domain.KeyAppointmentConfirmed) {
		return
	}

	id := data.Text(domain.KeyAppointmentID)
	if id == "" {
		id = missingAppointID
	}

	c.appendMessage(domain.Message{
		Origin: domain.OriginBot,
		Body:   fmt.Sprintf(appointmentText, id),
		Flags:  domain.MessageFlags{IsAppointment: true},
		Data:   data.Clone(),
	})
	c.log.Info("appointment confirmed", "appointment_id", id)
	c.publish(domain.SignalAppointmentConfirmed, map[string]any{"appointment_id": id})
}
