package event

// Wire type tags. Pairs are aliases for the same event kind.
const (
	TypeThought         = "thought"
	TypeThinking        = "thinking"
	TypePlanStep        = "plan_step"
	TypeToolExecution   = "tool_execution"
	TypeAction          = "action"
	TypeHitl            = "hitl"
	TypeApprovalRequest = "approval_required"
	TypeContent         = "content"
	TypeMessage         = "message"
)

// WireEnvelope documents the JSON shape of one data frame. Decoding does not
// unmarshal into it directly so that wrongly typed optional fields fall back
// to defaults instead of failing the whole frame.
type WireEnvelope struct {
	Data    *WireData `json:"data,omitempty" jsonschema:"description=Event payload; when absent the envelope's own fields are used"`
	Type    string    `json:"type,omitempty" jsonschema:"enum=thought,enum=thinking,enum=plan_step,enum=tool_execution,enum=action,enum=hitl,enum=approval_required,enum=content,enum=message"`
	Content string    `json:"content,omitempty" jsonschema:"description=Legacy untyped text"`
	Message string    `json:"message,omitempty" jsonschema:"description=Legacy untyped text"`
}

// WireData is the union of fields any event kind may carry.
type WireData struct {
	Params          map[string]interface{} `json:"params,omitempty"`
	Confidence      *float64               `json:"confidence,omitempty" jsonschema:"minimum=0,maximum=1"`
	EditableContent *string                `json:"editableContent,omitempty"`
	Content         string                 `json:"content,omitempty"`
	Message         string                 `json:"message,omitempty"`
	Title           string                 `json:"title,omitempty"`
	Description     string                 `json:"description,omitempty"`
	Tool            string                 `json:"tool,omitempty"`
	RequestID       string                 `json:"requestId,omitempty"`
	StepID          string                 `json:"stepId,omitempty"`
	ActionType      string                 `json:"actionType,omitempty"`
	Action          string                 `json:"action,omitempty"`
}
