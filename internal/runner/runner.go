// Package runner starts external coding-agent tasks and exposes their
// output as a stream of chunks.
package runner

import (
	"context"
	"encoding/json"
	"sync"
)

// Request describes one task run.
type Request struct {
	Prompt  string
	System  string
	WorkDir string
	// ResumeToken continues a previous run of the same runner.
	ResumeToken string
	// Policy is asked before each tool use. Nil allows everything.
	Policy Policy
}

// Chunk is one unit of streamed output. Control chunks (no role) carry
// only bookkeeping such as a resume token.
type Chunk struct {
	Role        string
	Content     string
	ResumeToken string
}

// Conversational reports whether the chunk belongs in the transcript.
func (c Chunk) Conversational() bool {
	return c.Role != "" && c.Content != ""
}

// Stream yields chunks until the task ends or Close is called.
type Stream interface {
	Next() bool
	Current() Chunk
	// Err returns the error that ended the stream, if any. It is valid once
	// Next has returned false.
	Err() error
	// Close stops consuming output and releases the task.
	Close() error
}

// Runner starts tasks.
type Runner interface {
	Start(ctx context.Context, req Request) (Stream, error)
}

// Policy decides whether a tool use may proceed.
type Policy interface {
	Allow(ctx context.Context, tool string, input json.RawMessage) bool
}

// AllowAll permits every tool use.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, string, json.RawMessage) bool { return true }

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, tool string, input json.RawMessage) bool

func (f PolicyFunc) Allow(ctx context.Context, tool string, input json.RawMessage) bool {
	return f(ctx, tool, input)
}

func allowsAll(p Policy) bool {
	if p == nil {
		return true
	}
	_, ok := p.(AllowAll)
	return ok
}

// produceFunc writes chunks through emit until done. emit returns false
// once the consumer has closed the stream.
type produceFunc func(ctx context.Context, emit func(Chunk) bool) error

// pipe runs a producer in its own goroutine and hands its chunks to the
// consumer one at a time.
type pipe struct {
	ch     chan Chunk
	cur    Chunk
	err    error
	cancel context.CancelFunc
	once   sync.Once
}

func newPipe(ctx context.Context, produce produceFunc) *pipe {
	ctx, cancel := context.WithCancel(ctx)
	p := &pipe{ch: make(chan Chunk), cancel: cancel}
	go func() {
		defer close(p.ch)
		emit := func(c Chunk) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case p.ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if err := produce(ctx, emit); err != nil && ctx.Err() == nil {
			p.err = err
		}
	}()
	return p
}

func (p *pipe) Next() bool {
	c, ok := <-p.ch
	if !ok {
		return false
	}
	p.cur = c
	return true
}

func (p *pipe) Current() Chunk { return p.cur }

func (p *pipe) Err() error { return p.err }

// Close cancels the producer and waits for it to exit.
func (p *pipe) Close() error {
	p.once.Do(func() {
		p.cancel()
		for range p.ch {
		}
	})
	return nil
}
