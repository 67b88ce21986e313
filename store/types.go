// Package store holds the conversation state an agent session writes to and a
// UI renders from. Sink is the narrow mutation contract the session engine
// depends on; Store is the in-memory, observable implementation.
package store

import "time"

// --- Conversation types -----------------------------------------------------

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one committed conversation entry. Messages are append-only.
type Message struct {
	Timestamp time.Time
	Metadata  map[string]interface{}
	ID        string
	Role      Role
	Content   string
}

// StepStatus is the lifecycle status of a timeline step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// StepMetadata carries optional tool details attached to a timeline step.
type StepMetadata struct {
	Params map[string]interface{}
	Result interface{}
	Tool   string
	Error  string
}

// TimelineStep is one unit of the agent's plan as surfaced to the user.
type TimelineStep struct {
	Timestamp   time.Time
	Metadata    StepMetadata
	ID          string
	Title       string
	Description string
	Status      StepStatus
}

// ActionStatus is the execution status of a tool action.
type ActionStatus string

const (
	ActionExecuting ActionStatus = "executing"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// ActionExecution records one tool invocation reported by the agent.
type ActionExecution struct {
	Timestamp time.Time
	Params    map[string]interface{}
	Result    interface{}
	ID        string
	Tool      string
	Status    ActionStatus
	Error     string
}

// HitlRequest is a pending human approval request. At most one exists at a time.
type HitlRequest struct {
	Timestamp       time.Time
	Params          map[string]interface{}
	Confidence      *float64
	EditableContent *string
	ID              string
	StepID          string
	Message         string
	Action          string
}

// State is a deep-copied snapshot of everything the store holds.
type State struct {
	PendingApproval *HitlRequest
	Messages        []Message
	Timeline        []TimelineStep
	Actions         []ActionExecution
	Preview         string
	Streaming       bool
	Thinking        bool
}

// --- Sink contract ----------------------------------------------------------

// Sink is the set of mutations and reads the session engine performs. It never
// reads rendering-only state.
type Sink interface {
	AppendMessage(msg Message)
	SetStreaming(streaming bool)
	SetThinking(thinking bool)
	// SetPreview replaces the live preview text; "" clears it.
	SetPreview(text string)
	AppendTimelineStep(step TimelineStep)
	PatchTimelineStep(id string, fn func(*TimelineStep)) bool
	// AppendActionExecution stores the action and returns its assigned id.
	AppendActionExecution(action ActionExecution) string
	PatchActionExecution(id string, fn func(*ActionExecution)) bool
	// SetPendingApproval replaces the pending approval; nil clears it.
	SetPendingApproval(req *HitlRequest)

	PendingApprovalID() string
	LastTimelineStepID() string
}

// --- Observer / ChangeEvent -------------------------------------------------

// Observer receives notifications when the store mutates.
type Observer interface {
	OnStoreEvent(event ChangeEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event ChangeEvent)

// OnStoreEvent implements Observer.
func (f ObserverFunc) OnStoreEvent(event ChangeEvent) { f(event) }

// ChangeEvent is the interface for store mutation notifications.
type ChangeEvent interface {
	changeEvent() // sealed marker
}

// MessageAppended fires when a message is committed.
type MessageAppended struct {
	Message Message
}

func (MessageAppended) changeEvent() {}

// FlagsChanged fires when the streaming or thinking flag changes.
type FlagsChanged struct {
	Streaming bool
	Thinking  bool
}

func (FlagsChanged) changeEvent() {}

// PreviewUpdated fires when the live preview text changes.
type PreviewUpdated struct {
	Text string
}

func (PreviewUpdated) changeEvent() {}

// TimelineUpdated fires when a step is appended or patched.
type TimelineUpdated struct {
	StepID string
}

func (TimelineUpdated) changeEvent() {}

// ActionsUpdated fires when an action execution is appended or patched.
type ActionsUpdated struct {
	ActionID string
}

func (ActionsUpdated) changeEvent() {}

// ApprovalChanged fires when the pending approval is set or cleared.
// Request is nil when cleared.
type ApprovalChanged struct {
	Request *HitlRequest
}

func (ApprovalChanged) changeEvent() {}
