package workflow

import (
	"sync"

	"github.com/kristerus/nulalabs/internal/chat"
)

// Tracker holds the most recently built graph, keyed by a signature of the
// message history it was derived from. Rebuilds race freely; the last writer
// wins and stale readers detect mismatch via the signature.
type Tracker struct {
	mu        sync.Mutex
	graph     Graph
	signature string
	valid     bool
}

// Store records a freshly built graph for the given history.
func (t *Tracker) Store(messages []chat.Message, g Graph) {
	sig := chat.Signature(messages)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.graph = g
	t.signature = sig
	t.valid = true
}

// Current returns the latest stored graph, if any.
func (t *Tracker) Current() (Graph, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.graph, t.valid
}

// CurrentFor returns the stored graph only when it was built from exactly
// this history; otherwise the caller should rebuild.
func (t *Tracker) CurrentFor(messages []chat.Message) (Graph, bool) {
	sig := chat.Signature(messages)
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid || t.signature != sig {
		return Graph{}, false
	}
	return t.graph, true
}
