// Package mockagent serves scripted agent event streams for local runs and tests.
package mockagent

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Frame is one scripted step of a stream.
type Frame struct {
	// Event is encoded as JSON and written as a "data:" line.
	Event map[string]interface{} `yaml:"event,omitempty"`
	// Raw is written verbatim, for malformed or non-data lines.
	Raw string `yaml:"raw,omitempty"`
	// Delay is slept before the frame is written.
	Delay time.Duration `yaml:"delay,omitempty"`
	// AwaitApproval holds the stream until an approval is posted.
	AwaitApproval bool `yaml:"awaitApproval,omitempty"`
}

// Script is a canned response to prompts that start with Match.
type Script struct {
	Name   string  `yaml:"name"`
	Match  string  `yaml:"match,omitempty"`
	Frames []Frame `yaml:"frames"`
	// Status overrides the response status; non-2xx statuses send no body.
	Status int `yaml:"status,omitempty"`
	// ChunkSize splits the body into writes of this many bytes. Zero writes
	// one frame per flush.
	ChunkSize int `yaml:"chunkSize,omitempty"`
	// OmitDone leaves out the trailing [DONE] sentinel.
	OmitDone bool `yaml:"omitDone,omitempty"`
}

// ScriptFile is the on-disk layout of a script collection.
type ScriptFile struct {
	Scripts []Script `yaml:"scripts"`
}

// LoadScripts reads a YAML script collection.
func LoadScripts(path string) ([]Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scripts: %w", err)
	}
	return ParseScripts(data)
}

// ParseScripts decodes a YAML script collection.
func ParseScripts(data []byte) ([]Script, error) {
	var f ScriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scripts: %w", err)
	}
	if len(f.Scripts) == 0 {
		return nil, fmt.Errorf("no scripts defined")
	}
	for i, s := range f.Scripts {
		if s.Name == "" {
			return nil, fmt.Errorf("script %d has no name", i)
		}
	}
	return f.Scripts, nil
}

// Lines renders the frame as wire text, one or more newline-terminated lines.
func (f Frame) Lines() (string, error) {
	if f.Raw != "" {
		if strings.HasSuffix(f.Raw, "\n") {
			return f.Raw, nil
		}
		return f.Raw + "\n", nil
	}
	if f.Event == nil {
		return "", nil
	}
	payload, err := json.Marshal(f.Event)
	if err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return "data: " + string(payload) + "\n\n", nil
}

// DefaultScript answers any prompt with a short plan and a reply.
func DefaultScript() Script {
	return Script{
		Name: "default",
		Frames: []Frame{
			{Event: map[string]interface{}{"type": "thought", "data": map[string]interface{}{"content": "Reading the page"}}},
			{Event: map[string]interface{}{"type": "plan_step", "data": map[string]interface{}{"title": "Summarize", "tool": "summarizer"}}},
			{Event: map[string]interface{}{"type": "content", "data": map[string]interface{}{"content": "Sure, "}}},
			{Event: map[string]interface{}{"type": "content", "data": map[string]interface{}{"content": "here it is."}}},
		},
	}
}
