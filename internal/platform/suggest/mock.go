package suggest

import (
	"context"
	"sync"
)

// Mock is a deterministic in-process suggestion capability for tests and
// local development. When Fn is nil it answers with Fixed.
type Mock struct {
	Fixed Suggestion
	Err   error
	Fn    func(req Request) (Suggestion, error)

	mu    sync.Mutex
	calls []Request
}

func NewMock(fixed Suggestion) *Mock {
	return &Mock{Fixed: fixed}
}

func (m *Mock) Suggest(ctx context.Context, req Request) (Suggestion, error) {
	_ = ctx
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.Fn != nil {
		return m.Fn(req)
	}
	if m.Err != nil {
		return Suggestion{}, m.Err
	}
	return m.Fixed, nil
}

// Calls returns a copy of every request seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
