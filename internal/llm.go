package internal

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// ContextLimits holds per-provider sizing for LLM requests
type ContextLimits struct {
	// InputTokenBudget bounds the estimated tokens of one chat request
	InputTokenBudget int
	// BriefTranscriptChars caps the transcript slice for brief summaries
	BriefTranscriptChars int
	// DetailedTranscriptChars caps the transcript slice for detailed summaries
	DetailedTranscriptChars int
}

var providerLimits = map[string]ContextLimits{
	"openai": {InputTokenBudget: 50000, BriefTranscriptChars: 40000, DetailedTranscriptChars: 100000},
	"qwen":   {InputTokenBudget: 50000, BriefTranscriptChars: 30000, DetailedTranscriptChars: 80000},
	"gemini": {InputTokenBudget: 100000, BriefTranscriptChars: 60000, DetailedTranscriptChars: 150000},
}

// GetContextLimits returns the limits for a provider, falling back to the
// openai defaults for unknown providers.
func GetContextLimits(provider string) ContextLimits {
	if limits, ok := providerLimits[provider]; ok {
		return limits
	}
	return providerLimits["openai"]
}

// ToolCallDelta is one streamed fragment of a tool-call descriptor. The
// Arguments field arrives split across chunks and must be concatenated.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// StreamChunk is one incremental piece of a streamed completion
type StreamChunk struct {
	Content        string
	ToolCallDeltas []ToolCallDelta
	FinishReason   string
}

// ChatRequest is a single LLM invocation
type ChatRequest struct {
	Messages []openai.ChatCompletionMessageParamUnion
	Tools    []openai.ChatCompletionToolUnionParam
}

// LLM abstracts the chat-completion provider so services can be tested
// against fakes.
type LLM interface {
	// Invoke performs a blocking completion
	Invoke(ctx context.Context, req ChatRequest) (*openai.ChatCompletion, error)
	// InvokeStream performs a streaming completion, calling onChunk for each
	// delta, and returns the accumulated completion when the stream ends.
	InvokeStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk) error) (*openai.ChatCompletion, error)
}

// OpenAIClient implements LLM against any OpenAI-compatible endpoint
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client for the configured model. An empty baseURL
// uses the official OpenAI endpoint; setting it points at any compatible
// provider (qwen, ollama, etc).
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: model}
}

// Invoke performs a blocking chat completion
func (c *OpenAIClient) Invoke(ctx context.Context, req ChatRequest) (*openai.ChatCompletion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: req.Messages,
	}
	if len(req.Tools) > 0 {
		params.Tools = req.Tools
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices from provider")
	}
	return resp, nil
}

// InvokeStream performs a streaming chat completion, forwarding deltas to
// onChunk as they arrive.
func (c *OpenAIClient) InvokeStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk) error) (*openai.ChatCompletion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: req.Messages,
	}
	if len(req.Tools) > 0 {
		params.Tools = req.Tools
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		sc := StreamChunk{
			Content:      choice.Delta.Content,
			FinishReason: choice.FinishReason,
		}
		for _, tc := range choice.Delta.ToolCalls {
			sc.ToolCallDeltas = append(sc.ToolCallDeltas, ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if err := onChunk(sc); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("streaming chat completion: %w", err)
	}

	completion := acc.ChatCompletion
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response choices from provider")
	}
	return &completion, nil
}

// ToolCall is a fully assembled tool invocation request from the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallAccumulator reassembles tool calls from streamed fragments. The
// provider splits a call's JSON arguments across many chunks, all carrying
// the same call index; fragments are concatenated per index.
type ToolCallAccumulator struct {
	calls map[int]*ToolCall
}

// NewToolCallAccumulator creates an empty accumulator
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int]*ToolCall)}
}

// Add merges one streamed fragment into the accumulator
func (a *ToolCallAccumulator) Add(delta ToolCallDelta) {
	call, ok := a.calls[delta.Index]
	if !ok {
		call = &ToolCall{}
		a.calls[delta.Index] = call
	}
	if delta.ID != "" {
		call.ID = delta.ID
	}
	if delta.Name != "" {
		call.Name = delta.Name
	}
	call.Arguments += delta.Arguments
}

// Calls returns the assembled tool calls in call order
func (a *ToolCallAccumulator) Calls() []ToolCall {
	indexes := make([]int, 0, len(a.calls))
	for index := range a.calls {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, index := range indexes {
		calls = append(calls, *a.calls[index])
	}
	return calls
}

// Len reports how many distinct tool calls have been seen
func (a *ToolCallAccumulator) Len() int {
	return len(a.calls)
}
