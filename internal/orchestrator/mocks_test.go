package orchestrator_test

import (
	"context"
	"io"
	"sync"

	"hivemind.app/conduit/common/llm"
	"hivemind.app/conduit/core/config"
	"hivemind.app/conduit/internal/model"
	"hivemind.app/conduit/internal/orchestrator"
	"hivemind.app/conduit/internal/store"
)

var errNotFound = store.ErrNotFound

// scriptedStream replays a fixed frame sequence, then the terminal error
// (io.EOF unless overridden).
type scriptedStream struct {
	frames []llm.Frame
	next   int
	err    error
}

func (s *scriptedStream) Recv() (llm.Frame, error) {
	if s.next < len(s.frames) {
		frame := s.frames[s.next]
		s.next++
		return frame, nil
	}
	if s.err != nil {
		return llm.Frame{}, s.err
	}
	return llm.Frame{}, io.EOF
}

func (s *scriptedStream) Close() error { return nil }

type capturedRequest struct {
	Messages []llm.Message
	Tools    []llm.Tool
}

// mockStreamer pops one scripted stream per StreamTurn call and records
// every request for assertions.
type mockStreamer struct {
	mu       sync.Mutex
	scripts  []*scriptedStream
	errs     []error // per-call StreamTurn errors, nil for success
	requests []capturedRequest
}

func (m *mockStreamer) StreamTurn(_ context.Context, req llm.TurnRequest) (llm.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, capturedRequest{Messages: req.Messages, Tools: req.Tools})
	call := len(m.requests) - 1

	if call < len(m.errs) && m.errs[call] != nil {
		return nil, m.errs[call]
	}
	if len(m.scripts) == 0 {
		return &scriptedStream{}, nil
	}
	stream := m.scripts[0]
	m.scripts = m.scripts[1:]
	return stream, nil
}

func (m *mockStreamer) Model() string { return "mock-model" }

func (m *mockStreamer) captured() []capturedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capturedRequest(nil), m.requests...)
}

func textStream(content string) *scriptedStream {
	return &scriptedStream{frames: []llm.Frame{{Text: content}}}
}

func toolStream(content string, calls ...llm.ToolCall) *scriptedStream {
	var frames []llm.Frame
	if content != "" {
		frames = append(frames, llm.Frame{Text: content})
	}
	for i, call := range calls {
		frames = append(frames, llm.Frame{ToolCall: &llm.ToolCallDelta{
			Index:     i,
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		}})
	}
	return &scriptedStream{frames: frames}
}

// mockInvoker resolves tool calls from a name-keyed result table.
type mockInvoker struct {
	mu       sync.Mutex
	results  map[string]string
	errs     map[string]error
	invokeFn func(ctx context.Context, endpoint, toolName string, args map[string]any) (string, error)
	calls    []string
}

func (m *mockInvoker) Invoke(ctx context.Context, endpoint, toolName string, args map[string]any) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, toolName)
	m.mu.Unlock()

	if m.invokeFn != nil {
		return m.invokeFn(ctx, endpoint, toolName, args)
	}
	if err, ok := m.errs[toolName]; ok {
		return "", err
	}
	return m.results[toolName], nil
}

func (m *mockInvoker) invoked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// memoryStore keeps conversations in a map, mimicking the persistence
// contract (append failures configurable per test).
type memoryStore struct {
	mu            sync.Mutex
	conversations map[int64]*model.Conversation
	appendErr     error
	appended      []model.Message
}

func newMemoryStore(convs ...*model.Conversation) *memoryStore {
	s := &memoryStore{conversations: make(map[int64]*model.Conversation)}
	for _, conv := range convs {
		s.conversations[conv.ID] = conv
	}
	return s
}

func (s *memoryStore) Create(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id int64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, errNotFound
	}
	clone := *conv
	clone.Messages = append([]model.Message(nil), conv.Messages...)
	return &clone, nil
}

func (s *memoryStore) List(_ context.Context) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Conversation
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	return out, nil
}

func (s *memoryStore) AppendMessage(_ context.Context, conversationID int64, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	conv, ok := s.conversations[conversationID]
	if !ok {
		return errNotFound
	}
	conv.Messages = append(conv.Messages, *msg)
	s.appended = append(s.appended, *msg)
	return nil
}

func (s *memoryStore) UpdateTitle(_ context.Context, conversationID int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		conv.Title = title
	}
	return nil
}

func (s *memoryStore) SetMetadata(_ context.Context, conversationID int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		if conv.Metadata == nil {
			conv.Metadata = map[string]string{}
		}
		conv.Metadata[key] = value
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

func (s *memoryStore) messages(conversationID int64) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conversations[conversationID]
	return append([]model.Message(nil), conv.Messages...)
}

// recordingSink captures events; prompts additionally flow through a channel
// so tests can react to them while a turn is in flight.
type recordingSink struct {
	mu          sync.Mutex
	texts       []string
	toolResults []string
	completed   []string
	failures    []error
	prompts     chan orchestrator.ToolPrompt
}

func newRecordingSink() *recordingSink {
	return &recordingSink{prompts: make(chan orchestrator.ToolPrompt, 8)}
}

func (s *recordingSink) AssistantText(_ context.Context, _ int64, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, content)
}

func (s *recordingSink) ToolPromptRequired(_ context.Context, prompt orchestrator.ToolPrompt) {
	s.prompts <- prompt
}

func (s *recordingSink) ToolResult(_ context.Context, _ int64, call llm.ToolCall, result string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolResults = append(s.toolResults, call.Name)
}

func (s *recordingSink) TurnComplete(_ context.Context, _ int64, final string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, final)
}

func (s *recordingSink) TurnFailed(_ context.Context, _ int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

func (s *recordingSink) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failures)
}

// stubSource serves a fixed per-service tool list to the registry.
type stubSource struct {
	tools map[string][]model.ToolDescriptor
}

func (s *stubSource) ListTools(_ context.Context, svc config.ToolServiceConfig) ([]model.ToolDescriptor, error) {
	return append([]model.ToolDescriptor(nil), s.tools[svc.ID]...), nil
}
