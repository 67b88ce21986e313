package store

import (
	"fmt"
	"sync"
)

// Store is the single source of truth for one conversation. The write API is
// called by the session engine; the read API is called by the view.
type Store struct {
	pending   *HitlRequest
	messages  []Message
	timeline  []TimelineStep
	actions   []ActionExecution
	observers []Observer
	preview   string
	actionSeq int
	mu        sync.RWMutex
	streaming bool
	thinking  bool
}

var _ Sink = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// --- Write API (called by the session engine) -------------------------------

// AppendMessage commits a message and notifies observers.
func (s *Store) AppendMessage(msg Message) {
	msg = copyMessage(msg)
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify(MessageAppended{Message: copyMessage(msg)})
}

// SetStreaming sets the streaming flag. Observers are notified only on change.
func (s *Store) SetStreaming(streaming bool) {
	s.mu.Lock()
	if s.streaming == streaming {
		s.mu.Unlock()
		return
	}
	s.streaming = streaming
	ev := FlagsChanged{Streaming: s.streaming, Thinking: s.thinking}
	s.mu.Unlock()
	s.notify(ev)
}

// SetThinking sets the thinking flag. Observers are notified only on change.
func (s *Store) SetThinking(thinking bool) {
	s.mu.Lock()
	if s.thinking == thinking {
		s.mu.Unlock()
		return
	}
	s.thinking = thinking
	ev := FlagsChanged{Streaming: s.streaming, Thinking: s.thinking}
	s.mu.Unlock()
	s.notify(ev)
}

// SetPreview replaces the live preview text.
func (s *Store) SetPreview(text string) {
	s.mu.Lock()
	if s.preview == text {
		s.mu.Unlock()
		return
	}
	s.preview = text
	s.mu.Unlock()
	s.notify(PreviewUpdated{Text: text})
}

// AppendTimelineStep adds a step to the timeline.
func (s *Store) AppendTimelineStep(step TimelineStep) {
	step = copyStep(step)
	s.mu.Lock()
	s.timeline = append(s.timeline, step)
	s.mu.Unlock()
	s.notify(TimelineUpdated{StepID: step.ID})
}

// PatchTimelineStep finds a step by id and applies fn via copy-on-write.
// It returns false if no step has that id.
func (s *Store) PatchTimelineStep(id string, fn func(*TimelineStep)) bool {
	s.mu.Lock()
	found := false
	for i := len(s.timeline) - 1; i >= 0; i-- {
		if s.timeline[i].ID == id {
			stepCopy := copyStep(s.timeline[i])
			fn(&stepCopy)
			stepCopy.ID = id
			s.timeline[i] = stepCopy
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify(TimelineUpdated{StepID: id})
	}
	return found
}

// AppendActionExecution stores an action and returns its assigned id. Any id
// set by the caller is replaced.
func (s *Store) AppendActionExecution(action ActionExecution) string {
	action = copyAction(action)
	s.mu.Lock()
	s.actionSeq++
	action.ID = fmt.Sprintf("action-%d", s.actionSeq)
	s.actions = append(s.actions, action)
	s.mu.Unlock()
	s.notify(ActionsUpdated{ActionID: action.ID})
	return action.ID
}

// PatchActionExecution finds an action by id and applies fn via copy-on-write.
func (s *Store) PatchActionExecution(id string, fn func(*ActionExecution)) bool {
	s.mu.Lock()
	found := false
	for i := len(s.actions) - 1; i >= 0; i-- {
		if s.actions[i].ID == id {
			actionCopy := copyAction(s.actions[i])
			fn(&actionCopy)
			actionCopy.ID = id
			s.actions[i] = actionCopy
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify(ActionsUpdated{ActionID: id})
	}
	return found
}

// SetPendingApproval replaces the singleton pending approval. nil clears it.
func (s *Store) SetPendingApproval(req *HitlRequest) {
	req = copyHitl(req)
	s.mu.Lock()
	if s.pending == nil && req == nil {
		s.mu.Unlock()
		return
	}
	s.pending = req
	s.mu.Unlock()
	s.notify(ApprovalChanged{Request: copyHitl(req)})
}

// --- Read API ---------------------------------------------------------------

// PendingApprovalID returns the id of the pending approval, or "".
func (s *Store) PendingApprovalID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return ""
	}
	return s.pending.ID
}

// LastTimelineStepID returns the id of the most recent timeline step, or "".
func (s *Store) LastTimelineStepID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.timeline) == 0 {
		return ""
	}
	return s.timeline[len(s.timeline)-1].ID
}

// Snapshot returns a deep copy of the full store state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		PendingApproval: copyHitl(s.pending),
		Preview:         s.preview,
		Streaming:       s.streaming,
		Thinking:        s.thinking,
		Messages:        make([]Message, len(s.messages)),
		Timeline:        make([]TimelineStep, len(s.timeline)),
		Actions:         make([]ActionExecution, len(s.actions)),
	}
	for i := range s.messages {
		st.Messages[i] = copyMessage(s.messages[i])
	}
	for i := range s.timeline {
		st.Timeline[i] = copyStep(s.timeline[i])
	}
	for i := range s.actions {
		st.Actions[i] = copyAction(s.actions[i])
	}
	return st
}

// Messages returns a deep-copied snapshot of the committed messages.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	for i := range s.messages {
		out[i] = copyMessage(s.messages[i])
	}
	return out
}

// --- Observer management ----------------------------------------------------

// AddObserver registers an observer that will be notified on store mutations.
func (s *Store) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// notify sends an event to all registered observers.
// Observers are called synchronously; keep handlers fast.
func (s *Store) notify(event ChangeEvent) {
	s.mu.RLock()
	obs := s.observers
	s.mu.RUnlock()
	for _, o := range obs {
		o.OnStoreEvent(event)
	}
}
