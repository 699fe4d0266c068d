package llm

import (
	"context"
	"sync"
)

// Mock is a scripted client for tests. Responses are returned in order; when
// the script runs out the last response repeats.
type Mock struct {
	mu        sync.Mutex
	responses []Response
	calls     []Request
	err       error
}

// NewMock builds a mock that replays the given responses.
func NewMock(responses ...Response) *Mock {
	return &Mock{responses: responses}
}

// Fail makes every subsequent call return err.
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns a copy of every request received so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

func (m *Mock) Model() string { return "mock" }

func (m *Mock) Complete(ctx context.Context, req Request) (*Response, error) {
	return m.StreamComplete(ctx, req, Callbacks{})
}

func (m *Mock) StreamComplete(ctx context.Context, req Request, cb Callbacks) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	if len(m.responses) == 0 {
		m.mu.Unlock()
		return &Response{StopReason: "end_turn"}, nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	if cb.OnTextDelta != nil && resp.Text != "" {
		cb.OnTextDelta(resp.Text)
	}
	if cb.OnToolCall != nil {
		for _, call := range resp.ToolCalls {
			cb.OnToolCall(call)
		}
	}
	return &resp, nil
}
