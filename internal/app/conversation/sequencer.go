package conversation

import (
	"time"
)

type insertion struct {
	due time.Time
	run func()
}

// sequencer staggers insertions on the conversation loop. All methods except
// the timer callback run on the loop. Due times are non-decreasing, so a later
// batch never overtakes an earlier one that is still pending.
type sequencer struct {
	delay time.Duration
	post  func(func())
	after func()

	queue []insertion
	timer *time.Timer
	gen   int
}

func newSequencer(delay time.Duration, post func(func()), after func()) *sequencer {
	if delay < 0 {
		delay = 0
	}
	return &sequencer{delay: delay, post: post, after: after}
}

// schedule queues one batch: item i is due i*delay after now. Items already
// due run immediately.
func (s *sequencer) schedule(items []func()) {
	start := time.Now()
	for i, run := range items {
		due := start.Add(time.Duration(i) * s.delay)
		if n := len(s.queue); n > 0 && due.Before(s.queue[n-1].due) {
			due = s.queue[n-1].due
		}
		s.queue = append(s.queue, insertion{due: due, run: run})
	}
	s.drain()
}

func (s *sequencer) pending() int { return len(s.queue) }

// drain runs every due insertion in order and re-arms the timer for the rest.
func (s *sequencer) drain() {
	for len(s.queue) > 0 && !time.Now().Before(s.queue[0].due) {
		next := s.queue[0]
		s.queue[0] = insertion{}
		s.queue = s.queue[1:]
		next.run()
	}
	s.arm()
	s.after()
}

func (s *sequencer) arm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.queue) == 0 {
		return
	}

	s.gen++
	gen := s.gen
	wait := time.Until(s.queue[0].due)
	s.timer = time.AfterFunc(wait, func() {
		s.post(func() {
			if gen != s.gen {
				return
			}
			s.timer = nil
			s.drain()
		})
	})
}

// stop drops every pending insertion.
func (s *sequencer) stop() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.queue = nil
}
