package session

import (
	"context"
	"sync"
)

// State is the engine's position in the turn lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateThinking
	StateStreaming
	StateAwaitingApproval
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateThinking:
		return "thinking"
	case StateStreaming:
		return "streaming"
	case StateAwaitingApproval:
		return "awaiting_approval"
	default:
		return "unknown"
	}
}

// Outcome is how a turn ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSettled
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSettled:
		return "settled"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Turn is the handle for one send-to-settle cycle.
type Turn struct {
	err     error
	done    chan struct{}
	text    string
	Prompt  string
	Number  int
	outcome Outcome
	mu      sync.Mutex
}

func newTurn(number int, prompt string) *Turn {
	return &Turn{
		Number: number,
		Prompt: prompt,
		done:   make(chan struct{}),
	}
}

// Done is closed when the turn settles, fails, or is cancelled.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the turn outcome, or OutcomePending while it runs.
func (t *Turn) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Err returns the transport error of a failed turn.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Text returns the assistant text committed by a settled turn.
func (t *Turn) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Wait blocks until the turn ends or ctx is done. The error reports only
// the wait itself: it is ctx.Err() when ctx ends first and nil otherwise.
// A failed turn's transport error is available from Err.
func (t *Turn) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.Outcome(), nil
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

// finish records the outcome once; later calls are ignored.
func (t *Turn) finish(outcome Outcome, text string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outcome != OutcomePending {
		return
	}
	t.outcome = outcome
	t.text = text
	t.err = err
	close(t.done)
}
