// Package testutil holds in-process doubles for the conversation ports.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/PabloGalante/carebot/internal/domain"
)

// Reply is one canned dialogue response.
type Reply struct {
	Fragments []domain.Fragment
	Err       error
}

// Call records one Exchange invocation.
type Call struct {
	Sender  domain.SessionID
	Message string
}

// FakeDialogue answers Exchange with queued replies, in order.
// With no queued reply it returns an empty batch.
type FakeDialogue struct {
	mu       sync.Mutex
	replies  []Reply
	calls    []Call
	gate     chan struct{}
	probeErr error

	// Started receives each message as Exchange begins, if non-nil.
	Started chan string
}

func NewFakeDialogue(replies ...Reply) *FakeDialogue {
	return &FakeDialogue{replies: replies}
}

// Enqueue appends replies to the queue.
func (f *FakeDialogue) Enqueue(replies ...Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

// Hold makes every Exchange block until Release is called.
func (f *FakeDialogue) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks held Exchange calls.
func (f *FakeDialogue) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// SetProbeError makes Probe fail with err (nil restores success).
func (f *FakeDialogue) SetProbeError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErr = err
}

func (f *FakeDialogue) Exchange(ctx context.Context, sender domain.SessionID, message string) ([]domain.Fragment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Sender: sender, Message: message})
	gate := f.gate
	var r Reply
	if len(f.replies) > 0 {
		r = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if f.Started != nil {
		f.Started <- message
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, errors.Join(domain.ErrNetworkFailure, ctx.Err())
		}
	}
	return r.Fragments, r.Err
}

func (f *FakeDialogue) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeErr
}

// Calls returns a copy of the recorded calls.
func (f *FakeDialogue) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// RecordingPublisher keeps every published signal.
type RecordingPublisher struct {
	mu      sync.Mutex
	signals []domain.Signal
	Err     error
}

func (p *RecordingPublisher) Publish(_ context.Context, sig domain.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return p.Err
}

// Signals returns a copy of the recorded signals.
func (p *RecordingPublisher) Signals() []domain.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Signal(nil), p.signals...)
}

// Kinds returns the kinds of the recorded signals, in publish order.
func (p *RecordingPublisher) Kinds() []domain.SignalKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SignalKind, 0, len(p.signals))
	for _, s := range p.signals {
		out = append(out, s.Kind)
	}
	return out
}
