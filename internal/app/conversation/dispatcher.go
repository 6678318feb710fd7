package conversation

import (
	"context"
	"strings"

	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/observability"
)

// Send records the user's turn and issues one request to the dialogue server.
// The message body is the utterance when present, otherwise the payload; the
// server receives the payload when present, otherwise the utterance.
//
// Empty input is ignored and returns (nil, nil). While a request is in flight
// Send returns ErrBusy.
func (c *Conversation) Send(ctx context.Context, utterance, payload string) (*domain.Message, error) {
	utterance = strings.TrimSpace(utterance)
	payload = strings.TrimSpace(payload)
	if utterance == "" && payload == "" {
		return nil, nil
	}

	body, outbound := utterance, payload
	if body == "" {
		body = payload
	}
	if outbound == "" {
		outbound = utterance
	}

	// The request outlives the caller (e.g. an HTTP handler that has already
	// answered); it is bound to the conversation instead.
	reqCtx := c.ctx
	if rid := observability.RequestID(ctx); rid != "" {
		reqCtx = observability.WithRequestID(reqCtx, rid)
	}

	var (
		sent domain.Message
		busy bool
	)
	err := c.do(ctx, func() {
		if c.state.Busy {
			busy = true
			return
		}

		sent = c.appendMessage(domain.Message{Origin: domain.OriginUser, Body: body})
		c.state.Draft = ""
		c.state.Busy = true
		c.state.QuickReplies = nil
		c.inFlight++
		c.emitState()

		go c.dispatch(reqCtx, outbound)
	})
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, domain.ErrBusy
	}
	return &sent, nil
}

func (c *Conversation) dispatch(ctx context.Context, message string) {
	log := c.log
	if rid := observability.RequestID(ctx); rid != "" {
		log = log.With("request_id", rid)
	}
	log.Info("dispatch start")

	ctx, span := observability.StartSpan(ctx, "conversation.dispatch")
	frags, err := c.dialogue.Exchange(ctx, c.id, message)
	elapsed := span.End(err)

	log.Info("dispatch end", "elapsed_ms", elapsed.Milliseconds(), "fragments", len(frags), "ok", err == nil)

	c.post(func() { c.onResponse(frags, err) })
}

// onResponse runs on the loop once the request completes.
func (c *Conversation) onResponse(frags []domain.Fragment, err error) {
	c.inFlight--

	if err != nil {
		kind := domain.ErrorKind(err)
		c.log.Error("dialogue request failed", "error_kind", kind, "error", err)

		c.appendMessage(domain.Message{
			Origin: domain.OriginBot,
			Body:   errorText,
			Flags:  domain.MessageFlags{IsError: true},
		})
		c.state.Connection = domain.ConnectionDisconnected
		c.publish(domain.SignalDispatchFailed, map[string]any{
			"error_kind": kind,
			"error":      err.Error(),
		})
	} else {
		c.state.Connection = domain.ConnectionConnected
		c.log.Debug("dialogue response received", "fragments", len(frags))

		items := make([]func(), 0, len(frags))
		for i, f := range frags {
			i, f := i, f
			items = append(items, func() { c.applyFragment(i, f) })
		}
		c.seq.schedule(items)
	}

	c.state.Busy = false
	c.emitState()
	c.checkIdle()
}
