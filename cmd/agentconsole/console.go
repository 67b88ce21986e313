package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/bazelment/agentconsole/store"
)

// console mirrors store changes onto the terminal. It runs on the engine's
// goroutine, so it only writes output and forwards approvals to a channel.
type console struct {
	out       io.Writer
	status    io.Writer
	store     *store.Store
	renderer  *glamour.TermRenderer
	approvals chan store.HitlRequest
	printed   string
	width     int
	mu        sync.Mutex
}

func newConsole(out, status io.Writer, st *store.Store, renderer *glamour.TermRenderer) *console {
	return &console{
		out:       out,
		status:    status,
		store:     st,
		renderer:  renderer,
		approvals: make(chan store.HitlRequest, 1),
	}
}

// newMarkdownRenderer builds a glamour renderer wrapped at width.
func newMarkdownRenderer(width int) (*glamour.TermRenderer, error) {
	if width <= 0 {
		width = 80
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
}

// OnStoreEvent implements store.Observer.
func (c *console) OnStoreEvent(ev store.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := ev.(type) {
	case store.PreviewUpdated:
		c.preview(ev.Text)

	case store.FlagsChanged:
		if ev.Thinking {
			c.statusLine("… thinking")
		}

	case store.TimelineUpdated:
		for _, step := range c.store.Snapshot().Timeline {
			if step.ID != ev.StepID {
				continue
			}
			line := "▸ " + step.Title
			if step.Metadata.Tool != "" {
				line += " [" + step.Metadata.Tool + "]"
			}
			c.statusLine(line)
		}

	case store.ActionsUpdated:
		for _, a := range c.store.Snapshot().Actions {
			if a.ID == ev.ActionID {
				c.statusLine(fmt.Sprintf("⚙ %s (%s)", a.Tool, a.Status))
			}
		}

	case store.ApprovalChanged:
		if ev.Request == nil {
			return
		}
		// Replace rather than queue: only the latest request can be resolved.
		select {
		case <-c.approvals:
		default:
		}
		c.approvals <- *ev.Request

	case store.MessageAppended:
		c.commit(ev.Message)
	}
}

// statusLine writes one status line, truncated to width when width is set.
func (c *console) statusLine(line string) {
	if c.width > 0 && runewidth.StringWidth(line) > c.width {
		line = runewidth.Truncate(line, c.width, "…")
	}
	fmt.Fprintln(c.status, line)
}

// preview prints the new tail of the live preview. Markdown output is
// deferred to commit so that it renders once.
func (c *console) preview(text string) {
	if c.renderer != nil {
		return
	}
	if text == "" {
		c.printed = ""
		return
	}
	if strings.HasPrefix(text, c.printed) {
		fmt.Fprint(c.out, text[len(c.printed):])
	} else {
		fmt.Fprint(c.out, "\n"+text)
	}
	c.printed = text
}

func (c *console) commit(msg store.Message) {
	if msg.Role != store.RoleAssistant {
		return
	}
	if msg.Metadata["error"] == true {
		if c.printed != "" {
			fmt.Fprintln(c.out)
		}
		fmt.Fprintln(c.status, "✗ "+msg.Content)
		return
	}
	if c.renderer == nil {
		fmt.Fprintln(c.out)
		return
	}
	rendered, err := c.renderer.Render(msg.Content)
	if err != nil {
		fmt.Fprintln(c.out, msg.Content)
		return
	}
	fmt.Fprint(c.out, rendered)
}
