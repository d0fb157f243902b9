package orchestrator

import (
	"sync"

	"hivemind.app/conduit/common/llm"
)

// ToolOutcome is the recorded result of one tool call in a batch.
type ToolOutcome struct {
	Call      llm.ToolCall
	ServiceID string
	Result    string
	Err       error
	Cancelled bool
}

// Batch tracks the tool calls issued by one model turn. It transitions to
// complete exactly once and triggers exactly one downstream action: the
// normal resubmission, or the cancellation conclusion, never both and never
// twice. All decisions are made under one lock so "last result arrives" and
// "user cancels" racing each other cannot both fire.
type Batch struct {
	ID             int64
	ConversationID int64
	Depth          int

	mu        sync.Mutex
	total     int
	results   []ToolOutcome
	cancelled bool
	fired     bool // the single downstream action was claimed
}

func NewBatch(id, conversationID int64, depth, total int) *Batch {
	return &Batch{
		ID:             id,
		ConversationID: conversationID,
		Depth:          depth,
		total:          total,
	}
}

// AddResult appends an outcome and reports whether the batch just became
// complete. Results arriving after cancellation are still recorded; the
// caller decides what to do with completeness via TryFireCompletion.
func (b *Batch) AddResult(outcome ToolOutcome) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, outcome)
	return len(b.results) == b.total
}

// Cancel marks the batch cancelled. Returns true only for the call that
// performed the transition.
func (b *Batch) Cancel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelled {
		return false
	}
	b.cancelled = true
	return true
}

func (b *Batch) Cancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// TryFireCompletion claims the normal resubmission. It succeeds at most
// once, and only when every result is in and the batch was not cancelled.
// The cancellation check happens inside the same critical section as the
// claim, closing the race between the final completion and a cancel.
func (b *Batch) TryFireCompletion() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fired || b.cancelled || len(b.results) != b.total {
		return false
	}
	b.fired = true
	return true
}

// TryFireConclusion claims the cancellation conclusion. It succeeds at most
// once, and only on a cancelled batch whose normal resubmission has not
// fired.
func (b *Batch) TryFireConclusion() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fired || !b.cancelled {
		return false
	}
	b.fired = true
	return true
}

// Results returns a snapshot of the outcomes recorded so far.
func (b *Batch) Results() []ToolOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make([]ToolOutcome, len(b.results))
	copy(snapshot, b.results)
	return snapshot
}

// Size returns the expected number of results.
func (b *Batch) Size() int {
	return b.total
}
