package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
)

type openaiStreamer struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIStreamer creates a Streamer backed by an OpenAI-compatible API.
func NewOpenAIStreamer(cfg Config) (Streamer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	return &openaiStreamer{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *openaiStreamer) StreamTurn(ctx context.Context, req TurnRequest) (Stream, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            c.convertMessages(req.Messages),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if tools := c.convertTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	return &openaiStream{inner: c.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func (c *openaiStreamer) Model() string {
	return c.model
}

// openaiStream adapts the SSE chunk stream to slot-indexed frames. One chunk
// may fan out into several frames (text plus multiple tool-call deltas), so
// converted frames queue until drained.
type openaiStream struct {
	inner   *ssestream.Stream[openai.ChatCompletionChunk]
	pending []Frame
}

func (s *openaiStream) Recv() (Frame, error) {
	for len(s.pending) == 0 {
		if !s.inner.Next() {
			if err := s.inner.Err(); err != nil {
				return Frame{}, err
			}
			return Frame{}, io.EOF
		}
		s.pending = convertChunk(s.inner.Current())
	}

	frame := s.pending[0]
	s.pending = s.pending[1:]
	return frame, nil
}

func (s *openaiStream) Close() error {
	return s.inner.Close()
}

func convertChunk(chunk openai.ChatCompletionChunk) []Frame {
	var frames []Frame

	if len(chunk.Choices) > 0 {
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			frames = append(frames, Frame{Text: delta.Content})
		}
		for _, tc := range delta.ToolCalls {
			frames = append(frames, Frame{ToolCall: &ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}})
		}
	}

	// The usage-only chunk arrives last, with an empty choice list.
	if chunk.Usage.TotalTokens > 0 {
		frames = append(frames, Frame{Usage: &Usage{
			PromptTokens:     int(chunk.Usage.PromptTokens),
			CompletionTokens: int(chunk.Usage.CompletionTokens),
		}})
	}

	return frames
}

func (c *openaiStreamer) convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case "system":
			result = append(result, openai.SystemMessage(msg.Content))

		case "user":
			result = append(result, openai.UserMessage(msg.Content))

		case "assistant":
			if len(msg.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					}
				}
				result = append(result, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)},
						ToolCalls: toolCalls,
					},
				})
			} else {
				result = append(result, openai.AssistantMessage(msg.Content))
			}

		case "tool":
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	return result
}

func (c *openaiStreamer) convertTools(tools []Tool) []openai.ChatCompletionToolParam {
	result := make([]openai.ChatCompletionToolParam, len(tools))

	for i, t := range tools {
		var params shared.FunctionParameters
		if t.Parameters != nil {
			data, _ := json.Marshal(t.Parameters)
			_ = json.Unmarshal(data, &params)
		}

		result[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  params,
			},
		}
	}

	return result
}
