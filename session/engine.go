// Package session applies an agent's streamed events to a store.Sink.
//
// An Engine owns at most one live stream. Send cancels any live stream before
// starting the next one, and Stop and Close use the same cancellation path.
// A cancelled stream never commits a message and never mutates the sink after
// the cancellation; the canceller resets the streaming flags itself.
//
// Sink mutations are serialized under the engine lock, so store observers
// must not call back into the Engine synchronously.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bazelment/agentconsole/event"
	"github.com/bazelment/agentconsole/frame"
	"github.com/bazelment/agentconsole/metrics"
	"github.com/bazelment/agentconsole/store"
	"github.com/bazelment/agentconsole/transport"
)

// Decision is a human response to a pending approval.
type Decision struct {
	EditedContent *string
	Comment       string
	Approved      bool
}

// stream is the per-send state. It lives from Send until the turn ends.
type stream struct {
	cancel   context.CancelFunc
	turn     *Turn
	parser   *frame.Parser
	resume   chan struct{}
	awaiting string
	acc      strings.Builder
	hitl     bool
}

// Engine drives one conversation.
type Engine struct {
	ctx        context.Context
	client     *transport.Client
	sink       store.Sink
	dispatcher *event.Dispatcher
	live       *stream
	cancel     context.CancelFunc
	config     Config
	wg         sync.WaitGroup
	state      State
	msgSeq     int
	stepSeq    int
	turnSeq    int
	mu         sync.Mutex
	closed     bool
}

// NewEngine creates an engine that reads streams through client and writes to sink.
func NewEngine(client *transport.Client, sink store.Sink, opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	dispatchOpts := []event.Option{
		event.WithLogger(config.Logger),
		event.WithPlaceholders(config.Placeholders),
	}
	if config.Recorder != nil {
		dispatchOpts = append(dispatchOpts, event.WithRecorder(config.Recorder))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:        ctx,
		cancel:     cancel,
		client:     client,
		sink:       sink,
		config:     config,
		dispatcher: event.NewDispatcher(dispatchOpts...),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Live reports whether a stream is in progress.
func (e *Engine) Live() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live != nil
}

// Send submits a prompt and starts reading the agent's stream in the
// background. A live stream from an earlier Send is cancelled silently first.
// ctx bounds the new stream: cancelling it cancels the stream.
func (e *Engine) Send(ctx context.Context, prompt string) (*Turn, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	collab := e.config.Collab
	req := transport.StreamRequest{
		Prompt:   prompt,
		Context:  collab.pageContext(),
		Token:    collab.token(),
		TenantID: collab.tenantID(),
		UserID:   collab.userID(),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	if e.live != nil {
		e.config.Logger.Debug("superseding live stream", "turn", e.live.turn.Number)
		e.cancelLocked(e.live)
	}

	e.turnSeq++
	streamCtx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(e.ctx, cancel)
	st := &stream{
		turn:   newTurn(e.turnSeq, prompt),
		parser: frame.NewParser(),
		resume: make(chan struct{}, 1),
		cancel: func() {
			stopOnClose()
			cancel()
		},
	}
	e.live = st

	e.sink.AppendMessage(store.Message{
		ID:        e.nextMessageID(),
		Role:      store.RoleUser,
		Content:   prompt,
		Timestamp: e.config.Now(),
	})
	e.sink.SetPreview("")
	e.sink.SetStreaming(true)
	e.sink.SetThinking(true)
	e.state = StateSending

	e.config.Recorder.StreamStarted()
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(streamCtx, st, req)
	return st.turn, nil
}

// Stop cancels the live stream, if any. It reports whether a stream was live.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live == nil {
		return false
	}
	e.cancelLocked(e.live)
	return true
}

// Close cancels the live stream and waits for the read loop to exit. The
// engine rejects Send afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.live != nil {
		e.cancelLocked(e.live)
	}
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	return nil
}

// ResolveApproval answers the pending approval identified by requestID. The
// decision is posted to the approval endpoint, the pending slot is cleared,
// and a read paused on this approval resumes.
//
// The post happens without the engine lock. If the stream is cancelled or
// the approval replaced while it is in flight, the server has still received
// the decision; ResolveApproval then returns ErrApprovalStale and leaves the
// pending slot alone. ErrNoPendingApproval and ErrApprovalMismatch mean
// nothing was sent.
func (e *Engine) ResolveApproval(ctx context.Context, requestID string, d Decision) error {
	e.mu.Lock()
	pending := e.sink.PendingApprovalID()
	e.mu.Unlock()

	if pending == "" {
		return ErrNoPendingApproval
	}
	if pending != requestID {
		return ErrApprovalMismatch
	}

	collab := e.config.Collab
	err := e.client.SubmitApproval(ctx, transport.ApprovalRequest{
		RequestID:     requestID,
		Approved:      d.Approved,
		EditedContent: d.EditedContent,
		Comment:       d.Comment,
		Token:         collab.token(),
		TenantID:      collab.tenantID(),
		UserID:        collab.userID(),
	})
	if err != nil {
		return fmt.Errorf("failed to submit approval %s: %w", requestID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink.PendingApprovalID() != requestID {
		e.config.Logger.Warn("approval went stale while being submitted", "request_id", requestID)
		return ErrApprovalStale
	}
	e.sink.SetPendingApproval(nil)
	e.config.Recorder.ApprovalResolved(d.Approved)
	e.config.Logger.Info("approval resolved", "request_id", requestID, "approved", d.Approved)

	if st := e.live; st != nil && st.awaiting == requestID {
		st.awaiting = ""
		e.sink.SetStreaming(true)
		e.sink.SetThinking(true)
		e.state = StateThinking
		select {
		case st.resume <- struct{}{}:
		default:
		}
	}
	return nil
}

// --- read loop --------------------------------------------------------------

// run reads one stream to its end.
func (e *Engine) run(ctx context.Context, st *stream, req transport.StreamRequest) {
	defer e.wg.Done()
	defer st.cancel()

	reader, err := e.client.Open(ctx, req)
	if err != nil {
		e.fail(ctx, st, err)
		return
	}
	defer reader.Close()

	for {
		frag, res, err := reader.Next()
		if err != nil {
			e.fail(ctx, st, err)
			return
		}

		switch res {
		case transport.ReadCancelled:
			e.finishCancelled(st)
			return

		case transport.ReadEnd:
			if !e.applyBatch(ctx, st, st.parser.Flush()) {
				return
			}
			e.settle(st)
			return

		case transport.ReadData:
			batch := st.parser.Feed(frag)
			if !e.applyBatch(ctx, st, batch) {
				return
			}
			if batch.Done {
				e.settle(st)
				return
			}
		}
	}
}

// applyBatch applies the batch's payloads in order. It returns false when the
// stream stopped being live, in which case the caller must return without
// touching the sink.
func (e *Engine) applyBatch(ctx context.Context, st *stream, batch frame.Batch) bool {
	for _, payload := range batch.Payloads {
		ev, ok := e.dispatcher.Dispatch(payload)
		if !ok {
			continue
		}
		paused, alive := e.apply(st, ev)
		if !alive {
			return false
		}
		if paused && !e.waitForResolution(ctx, st) {
			return false
		}
	}
	return true
}

// apply performs the state transition for one event.
func (e *Engine) apply(st *stream, ev event.Event) (paused, alive bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live != st {
		return false, false
	}

	switch ev := ev.(type) {
	case event.Thinking:
		e.sink.SetThinking(true)
		e.state = StateThinking

	case event.Content:
		e.appendText(st, ev.Text)

	case event.Unknown:
		e.appendText(st, ev.Text)

	case event.PlanStep:
		e.stepSeq++
		e.sink.AppendTimelineStep(store.TimelineStep{
			ID:          fmt.Sprintf("step-%d", e.stepSeq),
			Title:       ev.Title,
			Description: ev.Description,
			Status:      store.StepProcessing,
			Timestamp:   e.config.Now(),
			Metadata: store.StepMetadata{
				Tool:   ev.Tool,
				Params: ev.Params,
			},
		})

	case event.ToolExecution:
		id := e.sink.AppendActionExecution(store.ActionExecution{
			Tool:      ev.Tool,
			Params:    ev.Params,
			Status:    store.ActionExecuting,
			Timestamp: e.config.Now(),
		})
		e.config.Logger.Debug("tool execution", "id", id, "tool", ev.Tool)

	case event.Hitl:
		stepID := ev.StepID
		if stepID == "" {
			stepID = e.sink.LastTimelineStepID()
		}
		e.sink.SetPendingApproval(&store.HitlRequest{
			ID:              ev.ID,
			StepID:          stepID,
			Message:         ev.Message,
			Action:          ev.Action,
			Params:          ev.Params,
			Confidence:      ev.Confidence,
			EditableContent: ev.EditableContent,
			Timestamp:       e.config.Now(),
		})
		e.sink.SetStreaming(false)
		e.sink.SetThinking(false)
		e.state = StateAwaitingApproval
		st.hitl = true
		e.config.Logger.Info("approval requested", "request_id", ev.ID, "action", ev.Action)

		if e.config.ApprovalMode == ApprovalPause {
			st.awaiting = ev.ID
			return true, true
		}
	}
	return false, true
}

// appendText grows the accumulator and mirrors it into the preview.
func (e *Engine) appendText(st *stream, text string) {
	st.acc.WriteString(text)
	e.sink.SetThinking(false)
	e.sink.SetStreaming(true)
	e.sink.SetPreview(st.acc.String())
	e.state = StateStreaming
}

// waitForResolution blocks a paused read until ResolveApproval or cancellation.
func (e *Engine) waitForResolution(ctx context.Context, st *stream) bool {
	select {
	case <-st.resume:
		return true
	case <-ctx.Done():
		if IsCancellation(ctx.Err()) {
			e.finishCancelled(st)
		} else {
			e.fail(ctx, st, &transport.TransportError{Message: "stream abandoned while awaiting approval", Cause: ctx.Err()})
		}
		return false
	}
}

// --- turn endings -----------------------------------------------------------

// settle commits the accumulated text as one assistant message.
func (e *Engine) settle(st *stream) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live != st {
		return
	}

	text := st.acc.String()
	if text != "" {
		e.sink.AppendMessage(store.Message{
			ID:        e.nextMessageID(),
			Role:      store.RoleAssistant,
			Content:   text,
			Timestamp: e.config.Now(),
		})
	}
	e.resetLocked(st, false)
	st.turn.finish(OutcomeSettled, text, nil)
	e.config.Recorder.StreamFinished(metrics.OutcomeSettled)
	e.config.Logger.Debug("turn settled", "turn", st.turn.Number, "chars", len(text))
}

// fail routes a stream error: cancellation is silent, anything else commits
// one localized error message.
func (e *Engine) fail(ctx context.Context, st *stream, err error) {
	if IsCancellation(err) || IsCancellation(ctx.Err()) {
		e.finishCancelled(st)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live != st {
		return
	}

	e.config.Logger.Warn("agent stream failed", "turn", st.turn.Number, "error", err)
	e.sink.AppendMessage(store.Message{
		ID:        e.nextMessageID(),
		Role:      store.RoleAssistant,
		Content:   e.config.Strings.TransportError,
		Timestamp: e.config.Now(),
		Metadata: map[string]interface{}{
			"error":  true,
			"detail": err.Error(),
		},
	})
	e.resetLocked(st, st.hitl)
	st.turn.finish(OutcomeFailed, "", err)
	e.config.Recorder.StreamFinished(metrics.OutcomeFailed)
}

// finishCancelled handles a cancellation observed by the read loop. When the
// engine itself cancelled the stream, cancelLocked already did the work.
func (e *Engine) finishCancelled(st *stream) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live != st {
		return
	}
	e.cancelLocked(st)
}

// cancelLocked cancels st and returns the engine to idle without committing
// anything. Must be called with e.mu held.
func (e *Engine) cancelLocked(st *stream) {
	st.cancel()
	e.resetLocked(st, st.hitl)
	st.turn.finish(OutcomeCancelled, "", nil)
	e.config.Recorder.StreamFinished(metrics.OutcomeCancelled)
	e.config.Logger.Debug("turn cancelled", "turn", st.turn.Number)
}

// resetLocked clears the session-owned flags and detaches st. A settled
// stream leaves its approval pending; an aborted one withdraws it.
func (e *Engine) resetLocked(st *stream, clearApproval bool) {
	e.sink.SetPreview("")
	e.sink.SetStreaming(false)
	e.sink.SetThinking(false)
	if clearApproval {
		e.sink.SetPendingApproval(nil)
	}
	st.awaiting = ""
	st.acc.Reset()
	e.live = nil
	e.state = StateIdle
}

func (e *Engine) nextMessageID() string {
	e.msgSeq++
	return fmt.Sprintf("msg-%d", e.msgSeq)
}
