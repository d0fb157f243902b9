package orchestrator

import (
	"sync"
	"time"
)

type promptDecision int

const (
	decisionConfirmed promptDecision = iota
	decisionCancelled
	decisionExpired
)

type pendingPrompt struct {
	prompt    ToolPrompt
	batch     *Batch
	createdAt time.Time
	decision  chan promptDecision // buffered; written exactly once by Resolve
}

// promptTable tracks pending manual confirmations across all conversations.
// Resolving removes the entry, so a second confirm or cancel for the same
// prompt reports ErrUnknownPrompt instead of double-delivering.
type promptTable struct {
	mu      sync.Mutex
	pending map[int64]*pendingPrompt
}

func newPromptTable() *promptTable {
	return &promptTable{pending: make(map[int64]*pendingPrompt)}
}

func (t *promptTable) register(prompt ToolPrompt, batch *Batch) *pendingPrompt {
	p := &pendingPrompt{
		prompt:    prompt,
		batch:     batch,
		createdAt: time.Now(),
		decision:  make(chan promptDecision, 1),
	}
	t.mu.Lock()
	t.pending[prompt.ID] = p
	t.mu.Unlock()
	return p
}

func (t *promptTable) resolve(id int64, decision promptDecision) error {
	t.mu.Lock()
	p, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !ok {
		return ErrUnknownPrompt
	}
	p.decision <- decision
	return nil
}

// remove drops a prompt without delivering a decision (used when the waiter
// stopped listening, e.g. the whole batch was cancelled).
func (t *promptTable) remove(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}
