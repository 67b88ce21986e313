package transport

import (
	"context"
	"errors"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const defaultReadSize = 4096

// ReadResult is the tri-state outcome of Reader.Next.
type ReadResult int

const (
	// ReadData means a non-empty text fragment was returned.
	ReadData ReadResult = iota
	// ReadEnd means the stream ended normally.
	ReadEnd
	// ReadCancelled means the context was cancelled. It is not an error.
	ReadCancelled
)

func (r ReadResult) String() string {
	switch r {
	case ReadData:
		return "data"
	case ReadEnd:
		return "end"
	case ReadCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Reader yields UTF-8 text fragments from a byte stream. A multi-byte
// sequence split across two reads is carried over and emitted whole.
type Reader struct {
	ctx     context.Context
	body    io.ReadCloser
	decoded io.Reader
	pending error
	buf     []byte
}

// NewReader wraps body. A nil body fails with a TransportError wrapping ErrNoBody.
func NewReader(ctx context.Context, body io.ReadCloser) (*Reader, error) {
	if body == nil {
		return nil, &TransportError{Message: "body reader unavailable", Cause: ErrNoBody}
	}
	return &Reader{
		ctx:     ctx,
		body:    body,
		decoded: transform.NewReader(body, unicode.UTF8.NewDecoder()),
		buf:     make([]byte, defaultReadSize),
	}, nil
}

// Next blocks until the next fragment is available, the stream ends, or the
// context is cancelled. The error is non-nil only for a read failure that is
// not attributable to cancellation, and is always a *TransportError. A
// context deadline counts as a read failure, not a cancellation.
func (r *Reader) Next() (string, ReadResult, error) {
	if err := r.ctx.Err(); err != nil {
		return r.classify(err)
	}

	if r.pending != nil {
		return r.classify(r.pending)
	}

	for {
		n, err := r.decoded.Read(r.buf)
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return r.classify(ctxErr)
		}
		if n > 0 {
			r.pending = err
			return string(r.buf[:n]), ReadData, nil
		}
		if err != nil {
			return r.classify(err)
		}
	}
}

func (r *Reader) classify(err error) (string, ReadResult, error) {
	if errors.Is(err, context.Canceled) {
		return "", ReadCancelled, nil
	}
	if errors.Is(err, io.EOF) {
		return "", ReadEnd, nil
	}
	return "", ReadEnd, &TransportError{Message: "stream read failed", Cause: err}
}

// Close releases the underlying body.
func (r *Reader) Close() error {
	return r.body.Close()
}
