// Package llm defines the contract for the external text-generation service.
package llm

import (
	"context"
	"errors"
	"io"
)

// Message is one role-tagged entry in a chat prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stream is a finite, pull-based sequence of text fragments. It is not
// restartable: closing it early terminates the underlying connection.
// Recv returns io.EOF when the sequence completes cleanly; any other error
// means the stream failed partway through and its output must be discarded.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client produces a lazy stream of fragments for an ordered message list.
type Client interface {
	ChatStream(ctx context.Context, messages []Message, temperature float64) (Stream, error)
}

// Drain consumes the stream to completion, invoking fn for each fragment in
// generation order, and returns the concatenation. fn may be nil. The
// concatenation is only valid output if Drain returns a nil error.
func Drain(s Stream, fn func(delta string)) (string, error) {
	defer s.Close()

	var out []byte
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return "", err
		}
		out = append(out, delta...)
		if fn != nil {
			fn(delta)
		}
	}
}
