package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// ErrInvalidToolArguments is returned by Finalize when a completed slot's
// accumulated arguments are not valid JSON. The partial result is still
// returned alongside it.
var ErrInvalidToolArguments = errors.New("tool call arguments are not valid JSON")

// Accumulator reconstructs a complete response from streamed frames: text
// fragments concatenate in arrival order, tool-call fragments accumulate
// per slot index.
type Accumulator struct {
	content strings.Builder
	slots   map[int]*slot
	usage   *Usage
	frames  int
}

type slot struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// Result is the assembled outcome of a completed stream.
type Result struct {
	Content   string
	ToolCalls []ToolCall // nil when the model requested no tools
	Usage     *Usage
	// FrameCount distinguishes a transport anomaly (zero frames) from a
	// legitimately empty response. Zero frames is reported, never fatal.
	FrameCount int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{slots: make(map[int]*slot)}
}

// AddFrame folds one frame into the accumulated state. The first non-empty
// ID and Name win for a slot; argument fragments append in arrival order.
func (a *Accumulator) AddFrame(f Frame) {
	a.frames++

	if f.Text != "" {
		a.content.WriteString(f.Text)
	}
	if f.Usage != nil {
		a.usage = f.Usage
	}
	if f.ToolCall == nil {
		return
	}

	s, ok := a.slots[f.ToolCall.Index]
	if !ok {
		s = &slot{index: f.ToolCall.Index}
		a.slots[f.ToolCall.Index] = s
	}
	if s.id == "" && f.ToolCall.ID != "" {
		s.id = f.ToolCall.ID
	}
	if s.name == "" && f.ToolCall.Name != "" {
		s.name = f.ToolCall.Name
	}
	s.args.WriteString(f.ToolCall.Arguments)
}

// Finalize assembles the result once the stream has ended. Slots are ordered
// by index. A slot whose arguments are not valid JSON yields
// ErrInvalidToolArguments, but the result is still populated so an otherwise
// successful stream is never discarded.
func (a *Accumulator) Finalize() (Result, error) {
	result := Result{
		Content:    a.content.String(),
		Usage:      a.usage,
		FrameCount: a.frames,
	}

	if len(a.slots) == 0 {
		return result, nil
	}

	indexes := make([]int, 0, len(a.slots))
	for idx := range a.slots {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var invalid []string
	for _, idx := range indexes {
		s := a.slots[idx]
		args := s.args.String()
		if args == "" {
			// Zero-parameter tools stream no argument fragments at all.
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			invalid = append(invalid, s.name)
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        s.id,
			Name:      s.name,
			Arguments: args,
		})
	}

	if len(invalid) > 0 {
		return result, fmt.Errorf("%w: %s", ErrInvalidToolArguments, strings.Join(invalid, ", "))
	}
	return result, nil
}

// Drain consumes a stream to completion through an accumulator. A mid-stream
// transport error still finalizes and returns what arrived so far, wrapped
// with the error; zero frames is reported via Result.FrameCount.
func Drain(ctx context.Context, stream Stream) (Result, error) {
	defer stream.Close()

	acc := NewAccumulator()
	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			result, _ := acc.Finalize()
			return result, fmt.Errorf("receiving stream frame: %w", err)
		}
		acc.AddFrame(frame)
	}

	result, err := acc.Finalize()
	if result.FrameCount == 0 {
		slog.WarnContext(ctx, "stream produced zero frames")
	}
	return result, err
}
