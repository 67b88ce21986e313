// Package frame reassembles text fragments of an SSE-style stream into
// newline-terminated frames and extracts their data payloads.
package frame

import "strings"

// Wire prefixes and the termination sentinel.
const (
	DataPrefix   = "data:"
	EventPrefix  = "event:"
	DoneSentinel = "[DONE]"
)

// Batch is the result of feeding one fragment to the parser.
type Batch struct {
	// Payloads holds the data payloads of the complete lines, in order.
	Payloads []string
	// Done is set when the termination sentinel was seen. Lines after the
	// sentinel in the same fragment are discarded.
	Done bool
}

// Parser holds the trailing partial line between fragments. It is not safe
// for concurrent use; one Parser belongs to one stream.
type Parser struct {
	buf  strings.Builder
	done bool
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a fragment and returns the payloads of every line it completes.
func (p *Parser) Feed(fragment string) Batch {
	if p.done {
		return Batch{Done: true}
	}
	p.buf.WriteString(fragment)
	text := p.buf.String()

	last := strings.LastIndexByte(text, '\n')
	if last < 0 {
		return Batch{}
	}

	complete := text[:last]
	rest := text[last+1:]
	p.buf.Reset()
	p.buf.WriteString(rest)

	return p.processLines(strings.Split(complete, "\n"))
}

// Flush processes the held partial line as if it were terminated. Call it
// once when the stream ends.
func (p *Parser) Flush() Batch {
	if p.done {
		return Batch{Done: true}
	}
	rest := p.buf.String()
	p.buf.Reset()
	if strings.TrimSpace(rest) == "" {
		return Batch{}
	}
	return p.processLines([]string{rest})
}

// Done reports whether the termination sentinel has been seen.
func (p *Parser) Done() bool { return p.done }

func (p *Parser) processLines(lines []string) Batch {
	var b Batch
	for _, line := range lines {
		payload, ok := ParseLine(line)
		if !ok || payload == "" {
			continue
		}
		if payload == DoneSentinel {
			p.done = true
			b.Done = true
			p.buf.Reset()
			return b
		}
		b.Payloads = append(b.Payloads, payload)
	}
	return b
}

// ParseLine extracts the payload of a single line. It reports false for
// event-name lines, blank lines, comments, and anything else that is not a
// data line.
func ParseLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", false
	case strings.HasPrefix(line, EventPrefix):
		// The event type is repeated inside the JSON payload.
		return "", false
	case strings.HasPrefix(line, DataPrefix):
		return strings.TrimSpace(line[len(DataPrefix):]), true
	default:
		return "", false
	}
}
