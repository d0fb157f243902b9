// Package orchestrator drives the reasoning/acting/observation loop: it
// turns streamed model responses into tool executions, feeds results back,
// and decides when a turn is finished. The loop is a single goroutine per
// conversation driven by iteration with an explicit depth counter, never by
// language-level recursion.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"hivemind.app/conduit/common/id"
	"hivemind.app/conduit/common/llm"
	"hivemind.app/conduit/common/logger"
	"hivemind.app/conduit/internal/model"
	"hivemind.app/conduit/internal/registry"
	"hivemind.app/conduit/internal/store"
	"hivemind.app/conduit/internal/tools"
)

const systemPrompt = `You are an assistant for security analysts. You can call tools to look up
indicators, query case data, and take actions on the analyst's behalf.
Call tools when they help answer the question; answer directly when they do
not. Always conclude with a clear answer for the analyst.`

const maxTitleLength = 80

type Config struct {
	MaxDepth        int           // Max tool rounds per user turn (default 5)
	ResubmitRetries int           // Extra attempts for a failed model request (default 2)
	ConcludeRetries int           // Extra attempts for the forced conclusion (default 2)
	PromptTTL       time.Duration // Pending confirmations expire after this (default 15m)
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 5
	}
	if c.ResubmitRetries < 0 {
		c.ResubmitRetries = 0
	}
	if c.ConcludeRetries < 0 {
		c.ConcludeRetries = 0
	}
	if c.PromptTTL <= 0 {
		c.PromptTTL = 15 * time.Minute
	}
	return c
}

type Orchestrator struct {
	cfg           Config
	streamer      llm.Streamer
	registry      *registry.Registry
	invoker       tools.Invoker
	conversations store.ConversationStore
	sink          Sink
	sufficient    SufficiencyPredicate
	prompts       *promptTable

	mu     sync.Mutex
	active map[int64]struct{}
}

func New(
	cfg Config,
	streamer llm.Streamer,
	reg *registry.Registry,
	invoker tools.Invoker,
	conversations store.ConversationStore,
	sink Sink,
	sufficient SufficiencyPredicate,
) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	if sufficient == nil {
		sufficient = DefaultSufficiency
	}
	return &Orchestrator{
		cfg:           cfg.withDefaults(),
		streamer:      streamer,
		registry:      reg,
		invoker:       invoker,
		conversations: conversations,
		sink:          sink,
		sufficient:    sufficient,
		prompts:       newPromptTable(),
		active:        make(map[int64]struct{}),
	}
}

// ConfirmPrompt approves a pending manual tool call.
func (o *Orchestrator) ConfirmPrompt(promptID int64) error {
	return o.prompts.resolve(promptID, decisionConfirmed)
}

// CancelPrompt rejects a pending manual tool call, cancelling its batch.
func (o *Orchestrator) CancelPrompt(promptID int64) error {
	return o.prompts.resolve(promptID, decisionCancelled)
}

// RunTurn processes one user message to a terminal outcome and returns the
// final assistant content. Terminal failures still leave a human-readable
// trace in the conversation; the turn never ends in silence.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID int64, userContent string) (string, error) {
	if !o.claim(conversationID) {
		return "", ErrConversationBusy
	}
	defer o.release(conversationID)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(conversationID),
		Component:      "conduit.orchestrator",
	})
	sc := logger.StartSpan(ctx, "orchestrator.run_turn")
	defer sc.End()
	ctx = sc.Context()

	conv, err := o.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("loading conversation: %w", err)
	}

	userMsg := model.Message{
		ID:      id.New(),
		Role:    model.RoleUser,
		Content: userContent,
	}
	if err := o.appendMessage(ctx, conv, &userMsg); err != nil {
		o.sink.TurnFailed(ctx, conversationID, err)
		return "", err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{TurnID: logger.Ptr(userMsg.ID)})

	if conv.Title == "" {
		o.autoTitle(ctx, conv, userContent)
	}

	final, err := o.runLoop(ctx, conv, userContent)
	if err != nil {
		sc.RecordError(err)
		o.failTurn(ctx, conv, err)
		return "", err
	}

	o.sink.TurnComplete(ctx, conversationID, final)
	return final, nil
}

// runLoop is the state machine: request the model, dispatch tools, repeat.
func (o *Orchestrator) runLoop(ctx context.Context, conv *model.Conversation, userContent string) (string, error) {
	depth := 0

	for {
		catalog := o.catalog(ctx)

		result, err := o.requestModel(ctx, o.buildMessages(conv), catalog)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrResubmission, err)
		}

		// No tool calls: the model is done. Terminal.
		if len(result.ToolCalls) == 0 {
			assistant := model.Message{
				ID:      id.New(),
				Role:    model.RoleAssistant,
				Content: result.Content,
			}
			if err := o.appendMessage(ctx, conv, &assistant); err != nil {
				return "", err
			}
			o.sink.AssistantText(ctx, conv.ID, result.Content)
			return result.Content, nil
		}

		depth++
		if depth > o.cfg.MaxDepth {
			slog.WarnContext(ctx, "recursion limit reached", "depth", depth, "max", o.cfg.MaxDepth)
			return "", ErrRecursionLimit
		}

		assistant := model.Message{
			ID:        id.New(),
			Role:      model.RoleAssistant,
			Content:   result.Content,
			ToolCalls: toModelCalls(result.ToolCalls),
		}
		if err := o.appendMessage(ctx, conv, &assistant); err != nil {
			return "", err
		}
		if result.Content != "" {
			o.sink.AssistantText(ctx, conv.ID, result.Content)
		}

		batch := NewBatch(id.New(), conv.ID, depth, len(result.ToolCalls))
		ctx := logger.WithLogFields(ctx, logger.LogFields{BatchID: logger.Ptr(batch.ID)})
		slog.InfoContext(ctx, "dispatching tool batch",
			"depth", depth, "tools", len(result.ToolCalls))

		if err := o.runBatch(ctx, conv, batch, result.ToolCalls); err != nil {
			return "", err
		}

		if batch.Cancelled() {
			if !batch.TryFireConclusion() {
				// Another path already claimed the terminal action.
				return "", fmt.Errorf("batch %d concluded twice", batch.ID)
			}
			return o.conclude(ctx, conv, batch, cancelInstruction)
		}

		if !batch.TryFireCompletion() {
			return "", fmt.Errorf("batch %d completed twice", batch.ID)
		}

		if o.sufficient(userContent, batch.Results(), depth) {
			slog.InfoContext(ctx, "results judged sufficient, forcing conclusion", "depth", depth)
			return o.conclude(ctx, conv, batch, sufficientInstruction)
		}
		// Loop: resubmit the grown conversation with the catalog intact.
	}
}

// runBatch partitions tool calls into auto and manual and executes them
// serially. Backend sessions are stateful and do not tolerate interleaved
// requests, so there is no per-batch parallelism. After a cancellation the
// remaining calls are recorded as cancelled without waiting.
func (o *Orchestrator) runBatch(ctx context.Context, conv *model.Conversation, batch *Batch, calls []llm.ToolCall) error {
	type routedCall struct {
		call llm.ToolCall
		desc model.ToolDescriptor
		ok   bool
	}

	var auto, manual []routedCall
	for _, call := range calls {
		desc, ok := o.registry.FindOwner(call.Name)
		if ok && desc.AutoExecute {
			auto = append(auto, routedCall{call: call, desc: desc})
		} else {
			// Unroutable calls are manual-with-missing-route: surfaced as
			// an error prompt, never silently skipped.
			manual = append(manual, routedCall{call: call, desc: desc, ok: ok})
		}
	}

	for _, rc := range auto {
		if batch.Cancelled() {
			if err := o.recordCancelled(ctx, conv, batch, rc.call); err != nil {
				return err
			}
			continue
		}
		if err := o.executeCall(ctx, conv, batch, rc.call, rc.desc); err != nil {
			return err
		}
	}

	for _, rc := range manual {
		if batch.Cancelled() {
			if err := o.recordCancelled(ctx, conv, batch, rc.call); err != nil {
				return err
			}
			continue
		}
		if err := o.awaitManual(ctx, conv, batch, rc.call, rc.desc, rc.ok); err != nil {
			return err
		}
	}

	return nil
}

// executeCall validates, invokes, records, and emits one tool call. A
// failure is recorded as an error result for the model to reason about; it
// never aborts the batch.
func (o *Orchestrator) executeCall(ctx context.Context, conv *model.Conversation, batch *Batch, call llm.ToolCall, desc model.ToolDescriptor) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ToolName:  logger.Ptr(call.Name),
		ServiceID: logger.Ptr(desc.ServiceID),
	})
	sc := logger.StartSpan(ctx, "orchestrator.execute_tool")
	defer sc.End()
	ctx = sc.Context()

	result, execErr := o.invoke(ctx, call, desc)
	if execErr != nil {
		sc.RecordError(execErr)
		slog.WarnContext(ctx, "tool execution failed", "error", execErr)
	}

	outcome := ToolOutcome{Call: call, ServiceID: desc.ServiceID, Result: result, Err: execErr}
	if err := o.recordOutcome(ctx, conv, batch, outcome); err != nil {
		return err
	}
	o.sink.ToolResult(ctx, conv.ID, call, result, execErr)
	return nil
}

func (o *Orchestrator) invoke(ctx context.Context, call llm.ToolCall, desc model.ToolDescriptor) (string, error) {
	schema, err := tools.ParseSchema(desc.Schema)
	if err != nil {
		return "", err
	}
	args, err := tools.ValidateArguments(ctx, call.Name, call.Arguments, schema)
	if err != nil {
		return "", err
	}

	endpoint, ok := o.registry.Endpoint(desc.ServiceID)
	if !ok {
		return "", fmt.Errorf("no endpoint for service %s", desc.ServiceID)
	}
	return o.invoker.Invoke(ctx, endpoint, call.Name, args)
}

// awaitManual surfaces a confirmation prompt and suspends until the human
// decides, the prompt expires, or the context ends. This is the loop's only
// human suspension point.
func (o *Orchestrator) awaitManual(ctx context.Context, conv *model.Conversation, batch *Batch, call llm.ToolCall, desc model.ToolDescriptor, routed bool) error {
	prompt := ToolPrompt{
		ID:             id.New(),
		BatchID:        batch.ID,
		ConversationID: conv.ID,
		Call:           call,
		ServiceID:      desc.ServiceID,
	}
	for _, svc := range o.registry.Services() {
		if svc.ID == desc.ServiceID {
			prompt.ServiceName = svc.Name
			break
		}
	}
	if !routed {
		prompt.RouteErr = fmt.Sprintf("no enabled service provides tool %q", call.Name)
	}

	pending := o.prompts.register(prompt, batch)
	o.sink.ToolPromptRequired(ctx, prompt)
	slog.InfoContext(ctx, "awaiting confirmation", "tool", call.Name, "prompt_id", prompt.ID)

	var decision promptDecision
	select {
	case decision = <-pending.decision:
	case <-time.After(o.cfg.PromptTTL):
		o.prompts.remove(prompt.ID)
		decision = decisionExpired
		slog.WarnContext(ctx, "confirmation prompt expired", "prompt_id", prompt.ID)
	case <-ctx.Done():
		o.prompts.remove(prompt.ID)
		return ctx.Err()
	}

	switch {
	case decision == decisionConfirmed && routed:
		return o.executeCall(ctx, conv, batch, call, desc)

	case decision == decisionConfirmed && !routed:
		outcome := ToolOutcome{
			Call: call,
			Err:  fmt.Errorf("no enabled service provides tool %q", call.Name),
		}
		if err := o.recordOutcome(ctx, conv, batch, outcome); err != nil {
			return err
		}
		o.sink.ToolResult(ctx, conv.ID, call, "", outcome.Err)
		return nil

	default: // cancelled or expired
		// Cancellation wins immediately; the batch never resubmits normally.
		batch.Cancel()
		return o.recordCancelled(ctx, conv, batch, call)
	}
}

// recordOutcome appends the tool-role message (durably) and the batch entry.
// The tool message correlates back to the assistant's call via ToolCallID.
func (o *Orchestrator) recordOutcome(ctx context.Context, conv *model.Conversation, batch *Batch, outcome ToolOutcome) error {
	content := outcome.Result
	if outcome.Err != nil {
		content = "Error: " + outcome.Err.Error()
	} else if outcome.Cancelled {
		content = "Cancelled by the analyst before execution."
	}

	msg := model.Message{
		ID:         id.New(),
		Role:       model.RoleTool,
		Content:    content,
		ToolCallID: outcome.Call.ID,
		ToolName:   outcome.Call.Name,
		IsError:    outcome.Err != nil || outcome.Cancelled,
	}
	if err := o.appendMessage(ctx, conv, &msg); err != nil {
		return err
	}

	batch.AddResult(outcome)
	return nil
}

func (o *Orchestrator) recordCancelled(ctx context.Context, conv *model.Conversation, batch *Batch, call llm.ToolCall) error {
	outcome := ToolOutcome{Call: call, Cancelled: true}
	if err := o.recordOutcome(ctx, conv, batch, outcome); err != nil {
		return err
	}
	o.sink.ToolResult(ctx, conv.ID, call, "", context.Canceled)
	return nil
}

const cancelInstruction = "Tool execution was cancelled by the analyst. Using only the tool results " +
	"already provided above, give your final answer now. Do not request any more " +
	"tools. If the available results are insufficient, say what is known and what " +
	"was not determined."

const sufficientInstruction = "The tool results above fully answer the question. Give your final answer " +
	"now. Do not request any more tools."

// conclude forces a terminal answer with the tool catalog omitted. Retries
// shrink the context window each attempt; if the model still yields nothing
// usable, a raw results summary is returned instead of looping forever.
func (o *Orchestrator) conclude(ctx context.Context, conv *model.Conversation, batch *Batch, instruction string) (string, error) {
	messages := o.buildMessages(conv)
	messages = append(messages, llm.Message{Role: model.RoleUser, Content: instruction})

	attempts := 1 + o.cfg.ConcludeRetries
	for attempt := 0; attempt < attempts; attempt++ {
		req := llm.TurnRequest{Messages: shrinkContext(messages, attempt)}
		stream, err := o.streamer.StreamTurn(ctx, req)
		if err == nil {
			result, drainErr := llm.Drain(ctx, stream)
			if drainErr == nil && strings.TrimSpace(result.Content) != "" {
				final := result.Content
				assistant := model.Message{ID: id.New(), Role: model.RoleAssistant, Content: final}
				if err := o.appendMessage(ctx, conv, &assistant); err != nil {
					return "", err
				}
				o.sink.AssistantText(ctx, conv.ID, final)
				return final, nil
			}
			if drainErr != nil {
				slog.WarnContext(ctx, "conclusion attempt failed", "attempt", attempt, "error", drainErr)
			}
		} else {
			slog.WarnContext(ctx, "conclusion request failed", "attempt", attempt, "error", err)
		}
	}

	// The model could not conclude; present the raw results rather than
	// losing the analyst's work.
	summary := FormatResultsSummary(batch.Results())
	assistant := model.Message{ID: id.New(), Role: model.RoleAssistant, Content: summary}
	if err := o.appendMessage(ctx, conv, &assistant); err != nil {
		return "", err
	}
	o.sink.AssistantText(ctx, conv.ID, summary)
	return summary, nil
}

// shrinkContext reduces the message window on conclusion retries: the full
// log first, then the tail of the conversation, then just the final
// instruction with whatever immediately precedes it.
func shrinkContext(messages []llm.Message, attempt int) []llm.Message {
	if attempt == 0 || len(messages) == 0 {
		return messages
	}

	keep := len(messages) / (attempt + 1)
	if keep < 2 {
		keep = 2
	}
	if keep >= len(messages) {
		return messages
	}

	tail := messages[len(messages)-keep:]
	// Never start the window on a tool message whose call is outside it.
	for len(tail) > 0 && tail[0].Role == model.RoleTool {
		tail = tail[1:]
	}
	return tail
}

// FormatResultsSummary renders batch outcomes as a plain numbered list, the
// last-resort terminal content when the model cannot author a conclusion.
func FormatResultsSummary(outcomes []ToolOutcome) string {
	var b strings.Builder
	b.WriteString("Tool results (no model conclusion was available):\n")
	for i, outcome := range outcomes {
		switch {
		case outcome.Cancelled:
			fmt.Fprintf(&b, "%d. %s: cancelled\n", i+1, outcome.Call.Name)
		case outcome.Err != nil:
			fmt.Fprintf(&b, "%d. %s: error: %s\n", i+1, outcome.Call.Name, outcome.Err)
		default:
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, outcome.Call.Name, outcome.Result)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// requestModel performs one model round with a bounded retry budget for
// transport failures. Invalid accumulated tool arguments are not retried;
// the affected call fails argument validation downstream and the model sees
// the error on resubmission.
func (o *Orchestrator) requestModel(ctx context.Context, messages []llm.Message, catalog []llm.Tool) (llm.Result, error) {
	attempts := 1 + o.cfg.ResubmitRetries
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return llm.Result{}, ctx.Err()
			}
			backoff *= 2
		}

		stream, err := o.streamer.StreamTurn(ctx, llm.TurnRequest{
			Messages: messages,
			Tools:    catalog,
		})
		if err != nil {
			lastErr = err
			slog.WarnContext(ctx, "model request failed", "attempt", attempt, "error", err)
			continue
		}

		result, err := llm.Drain(ctx, stream)
		if err != nil && !errors.Is(err, llm.ErrInvalidToolArguments) {
			lastErr = err
			slog.WarnContext(ctx, "model stream failed", "attempt", attempt, "error", err)
			continue
		}
		if errors.Is(err, llm.ErrInvalidToolArguments) {
			slog.WarnContext(ctx, "model produced malformed tool arguments", "error", err)
		}
		if result.FrameCount == 0 {
			slog.WarnContext(ctx, "model stream produced zero frames")
		}
		return result, nil
	}

	return llm.Result{}, lastErr
}

func (o *Orchestrator) catalog(ctx context.Context) []llm.Tool {
	descriptors, err := o.registry.Catalog()
	if err != nil {
		// Collisions are a configuration error; the first-registered tool
		// stays usable while the operator fixes the config.
		slog.ErrorContext(ctx, "tool catalog has conflicts", "error", err)
	}

	catalog := make([]llm.Tool, 0, len(descriptors))
	for _, desc := range descriptors {
		catalog = append(catalog, llm.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			Parameters:  desc.Schema,
		})
	}
	return catalog
}

func (o *Orchestrator) buildMessages(conv *model.Conversation) []llm.Message {
	messages := make([]llm.Message, 0, len(conv.Messages)+1)
	messages = append(messages, llm.Message{Role: model.RoleSystem, Content: systemPrompt})

	for _, msg := range conv.Messages {
		messages = append(messages, llm.Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  toLLMCalls(msg.ToolCalls),
			ToolCallID: msg.ToolCallID,
		})
	}
	return messages
}

// appendMessage persists the message before mutating in-memory state, so a
// crash between the two leaves a recoverable log rather than orphaned state.
func (o *Orchestrator) appendMessage(ctx context.Context, conv *model.Conversation, msg *model.Message) error {
	msg.ConversationID = conv.ID
	if err := o.conversations.AppendMessage(ctx, conv.ID, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	conv.Messages = append(conv.Messages, *msg)
	return nil
}

// failTurn leaves a visible error trace in the conversation and notifies
// the sink. Persistence of the trace is best-effort: if the store is the
// thing that failed, there is nothing further to do.
func (o *Orchestrator) failTurn(ctx context.Context, conv *model.Conversation, turnErr error) {
	trace := model.Message{
		ID:      id.New(),
		Role:    model.RoleAssistant,
		Content: "The request could not be completed: " + turnErr.Error(),
	}
	if err := o.appendMessage(ctx, conv, &trace); err != nil {
		slog.ErrorContext(ctx, "failed to persist error trace", "error", err)
	}
	o.sink.TurnFailed(ctx, conv.ID, turnErr)
}

func (o *Orchestrator) autoTitle(ctx context.Context, conv *model.Conversation, userContent string) {
	title := strings.TrimSpace(userContent)
	if len(title) > maxTitleLength {
		// Cut on a rune boundary; a byte slice can split a multi-byte rune.
		cut := maxTitleLength
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	if title == "" {
		return
	}
	if err := o.conversations.UpdateTitle(ctx, conv.ID, title); err != nil {
		slog.WarnContext(ctx, "failed to auto-title conversation", "error", err)
		return
	}
	conv.Title = title
}

func (o *Orchestrator) claim(conversationID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[conversationID]; busy {
		return false
	}
	o.active[conversationID] = struct{}{}
	return true
}

func (o *Orchestrator) release(conversationID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, conversationID)
}

func toModelCalls(calls []llm.ToolCall) []model.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]model.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = model.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	}
	return result
}

func toLLMCalls(calls []model.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]llm.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = llm.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	}
	return result
}
