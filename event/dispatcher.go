package event

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DecodeError reports a data payload that is not a JSON object.
type DecodeError struct {
	Cause   error
	Payload string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Recorder observes dispatch outcomes. metrics.Recorder implements it.
type Recorder interface {
	FrameDispatched(kind string)
	FrameDecodeFailed()
	FrameIgnored(typ string)
}

// Placeholders are the localized defaults substituted for missing fields.
type Placeholders struct {
	StepTitle       string
	ApprovalMessage string
}

// DefaultPlaceholders returns the English placeholders.
func DefaultPlaceholders() Placeholders {
	return Placeholders{
		StepTitle:       "Untitled step",
		ApprovalMessage: "Approval required",
	}
}

// UnknownTool is the tool name used when a payload omits it.
const UnknownTool = "unknown"

// Dispatcher turns payload strings into Events.
type Dispatcher struct {
	logger       *slog.Logger
	recorder     Recorder
	newID        func() string
	placeholders Placeholders
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dropped payloads.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRecorder sets the dispatch recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithPlaceholders sets the localized defaults.
func WithPlaceholders(p Placeholders) Option {
	return func(d *Dispatcher) {
		d.placeholders = p
	}
}

// WithIDGenerator overrides how missing approval request ids are synthesized.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		d.newID = fn
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:       slog.New(slog.DiscardHandler),
		placeholders: DefaultPlaceholders(),
		newID:        newRequestID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch decodes one payload. It returns false when the payload was
// malformed or carried an unrecognized type; the reason is logged, and the
// caller should carry on with the next payload.
func (d *Dispatcher) Dispatch(payload string) (Event, bool) {
	ev, err := d.decode(payload)
	if err != nil {
		d.logger.Warn("skipping malformed stream payload", "error", err, "payload", truncate(payload, 200))
		if d.recorder != nil {
			d.recorder.FrameDecodeFailed()
		}
		return nil, false
	}
	if ev == nil {
		return nil, false
	}
	if d.recorder != nil {
		d.recorder.FrameDispatched(ev.Kind().String())
	}
	return ev, true
}

func (d *Dispatcher) decode(payload string) (Event, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, &DecodeError{Payload: payload, Cause: err}
	}
	if obj == nil {
		return nil, &DecodeError{Payload: payload, Cause: fmt.Errorf("payload is null")}
	}

	typ := stringField(obj, "type")
	data := mapField(obj, "data")
	if data == nil {
		data = obj
	}

	switch typ {
	case "":
		if !hasAny(obj, "content", "message") {
			d.ignore("", "untyped payload without content or message")
			return nil, nil
		}
		return Unknown{Text: stringField(obj, "content", "message")}, nil

	case TypeThought, TypeThinking:
		return Thinking{Text: stringField(data, "content", "thought", "message")}, nil

	case TypePlanStep:
		title := stringField(data, "title")
		if title == "" {
			title = d.placeholders.StepTitle
		}
		return PlanStep{
			Title:       title,
			Description: stringField(data, "description"),
			Tool:        stringField(data, "tool"),
			Params:      paramsField(data),
		}, nil

	case TypeToolExecution, TypeAction:
		tool := stringField(data, "tool", "name")
		if tool == "" {
			tool = UnknownTool
		}
		return ToolExecution{Tool: tool, Params: paramsField(data)}, nil

	case TypeHitl, TypeApprovalRequest:
		return d.decodeHitl(data), nil

	case TypeContent, TypeMessage:
		return Content{Text: stringField(data, "content", "message", "text")}, nil

	default:
		d.ignore(typ, "unrecognized event type")
		return nil, nil
	}
}

func (d *Dispatcher) decodeHitl(data map[string]interface{}) Hitl {
	h := Hitl{
		ID:      stringField(data, "requestId", "id"),
		StepID:  stringField(data, "stepId"),
		Message: stringField(data, "message"),
		Action:  stringField(data, "actionType", "action"),
		Params:  paramsField(data),
	}
	if h.ID == "" {
		h.ID = d.newID()
	}
	if h.Message == "" {
		h.Message = d.placeholders.ApprovalMessage
	}
	if h.Action == "" {
		h.Action = UnknownTool
	}
	if c, ok := data["confidence"].(float64); ok {
		h.Confidence = &c
	}
	if e, ok := data["editableContent"].(string); ok {
		h.EditableContent = &e
	}
	return h
}

func (d *Dispatcher) ignore(typ, reason string) {
	d.logger.Debug("ignoring stream payload", "type", typ, "reason", reason)
	if d.recorder != nil {
		d.recorder.FrameIgnored(typ)
	}
}

// newRequestID returns a time-ordered id for approval requests the server
// did not label.
func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("hitl-%d", time.Now().UnixNano())
	}
	return "hitl-" + id.String()
}

// --- field helpers -----------------------------------------------------------

// stringField returns the first non-empty string value among keys.
func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func mapField(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}

// paramsField returns the params object, or an empty map.
func paramsField(m map[string]interface{}) map[string]interface{} {
	for _, k := range []string{"params", "args", "input"} {
		if p := mapField(m, k); p != nil {
			return p
		}
	}
	return map[string]interface{}{}
}

func hasAny(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
