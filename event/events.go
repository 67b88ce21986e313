// Package event decodes stream payloads into a closed set of semantic events.
//
// Two payload shapes are accepted: a typed envelope {"type": ..., "data": {...}}
// and a flat legacy object exposing "content" or "message" directly. Both
// normalize into one of the Event variants below. Malformed payloads and
// unrecognized type tags are logged and dropped here; they never reach the
// session.
package event

// Kind identifies an event variant.
type Kind int

const (
	// KindUnknown is an untyped legacy payload that still carries text.
	KindUnknown Kind = iota
	KindThinking
	KindPlanStep
	KindToolExecution
	KindHitl
	KindContent
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindThinking:
		return "thinking"
	case KindPlanStep:
		return "plan_step"
	case KindToolExecution:
		return "tool_execution"
	case KindHitl:
		return "hitl"
	case KindContent:
		return "content"
	default:
		return "invalid"
	}
}

// Event is the closed union of dispatched events.
type Event interface {
	Kind() Kind
	sealed()
}

// Thinking signals the agent is working. Text is informational only.
type Thinking struct {
	Text string
}

// PlanStep announces one step of the agent's plan.
type PlanStep struct {
	Params      map[string]interface{}
	Title       string
	Description string
	Tool        string
}

// ToolExecution announces a tool invocation.
type ToolExecution struct {
	Params map[string]interface{}
	Tool   string
}

// Hitl requests human approval before the agent proceeds. ID is never empty.
type Hitl struct {
	Params          map[string]interface{}
	Confidence      *float64
	EditableContent *string
	ID              string
	StepID          string
	Message         string
	Action          string
}

// Content carries one fragment of the assistant's answer.
type Content struct {
	Text string
}

// Unknown is an untyped payload that exposed content or message directly.
type Unknown struct {
	Text string
}

func (Thinking) Kind() Kind      { return KindThinking }
func (PlanStep) Kind() Kind      { return KindPlanStep }
func (ToolExecution) Kind() Kind { return KindToolExecution }
func (Hitl) Kind() Kind          { return KindHitl }
func (Content) Kind() Kind       { return KindContent }
func (Unknown) Kind() Kind       { return KindUnknown }

func (Thinking) sealed()      {}
func (PlanStep) sealed()      {}
func (ToolExecution) sealed() {}
func (Hitl) sealed()          {}
func (Content) sealed()       {}
func (Unknown) sealed()       {}
