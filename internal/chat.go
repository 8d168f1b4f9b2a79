package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
)

// maxToolRounds bounds the tool-call loop. On the final round the tool is
// withdrawn so the model must answer in text.
const maxToolRounds = 3

// finishReasonToolCalls is the provider finish reason requesting tool execution
const finishReasonToolCalls = "tool_calls"

// StreamEvent is one client-visible envelope of a streamed chat turn
type StreamEvent struct {
	Type    string `json:"type"` // content, searching, error
	Content string `json:"content,omitempty"`
}

// ChatService drives per-video conversations with the LLM, including the
// web-search tool loop and streaming delivery.
type ChatService struct {
	store    *Store
	llm      LLM
	budgeter *ContextBudgeter
	searcher WebSearcher // nil disables the web_search tool
	provider string
	language string
	logger   *Logger
}

// NewChatService wires the chat orchestrator
func NewChatService(store *Store, llm LLM, budgeter *ContextBudgeter, searcher WebSearcher, provider, language string, logger *Logger) *ChatService {
	if language == "" {
		language = "English"
	}
	return &ChatService{
		store:    store,
		llm:      llm,
		budgeter: budgeter,
		searcher: searcher,
		provider: provider,
		language: language,
		logger:   logger,
	}
}

// prepare gathers the video context, builds the budgeted message list, and
// persists the user's turn.
func (c *ChatService) prepare(ctx context.Context, userID uint, videoID, message string) (*Video, []openai.ChatCompletionMessageParamUnion, error) {
	video, err := c.store.GetVideoByVideoID(videoID)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up video %s: %w", videoID, err)
	}

	summary, err := c.store.GetUserSummaryForVideo(userID, video.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("looking up summary: %w", err)
	}

	history, err := c.store.GetChatHistory(userID, video.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading chat history: %w", err)
	}

	language := c.language
	if settings, err := c.store.GetSettings(userID); err == nil && settings.SummaryLanguage != "" {
		language = settings.SummaryLanguage
	}

	transcript := ""
	if TranscriptStateOf(video.Transcript) == TranscriptCached {
		transcript = *video.Transcript
	}

	systemPrompt := BuildSystemPrompt(video, summary, transcript, language, c.searcher != nil)
	messages := c.budgeter.BuildChatMessages(ctx, systemPrompt, history, message, c.provider)

	if err := c.store.SaveChatMessage(&ChatMessage{UserID: userID, VideoID: video.ID, Role: "user", Content: message}); err != nil {
		return nil, nil, fmt.Errorf("saving user message: %w", err)
	}

	return video, messages, nil
}

// Send runs one chat turn without streaming and returns the final answer
func (c *ChatService) Send(ctx context.Context, userID uint, videoID, message string) (string, error) {
	video, messages, err := c.prepare(ctx, userID, videoID, message)
	if err != nil {
		return "", err
	}

	// placeholder turn, filled in on success and removed on failure
	placeholder := &ChatMessage{UserID: userID, VideoID: video.ID, Role: "assistant", Content: ""}
	if err := c.store.SaveChatMessage(placeholder); err != nil {
		return "", fmt.Errorf("saving assistant placeholder: %w", err)
	}

	answer, err := c.runToolLoop(ctx, messages, nil)
	if err != nil {
		if delErr := c.store.DeleteLastAssistantMessage(userID, video.ID); delErr != nil {
			c.logger.Warnf("failed to remove assistant placeholder: %v", delErr)
		}
		return "", err
	}

	if err := c.store.UpdateChatMessageContent(placeholder.ID, answer); err != nil {
		c.logger.Errorf("failed to persist assistant message: %v", err)
	}
	return answer, nil
}

// Stream runs one chat turn, forwarding incremental events to emit. The
// final assistant text is persisted unless the client cancelled mid-stream.
func (c *ChatService) Stream(ctx context.Context, userID uint, videoID, message string, emit func(StreamEvent) error) error {
	video, messages, err := c.prepare(ctx, userID, videoID, message)
	if err != nil {
		return err
	}

	answer, err := c.runToolLoop(ctx, messages, emit)
	if err != nil {
		// A cancelled client gets nothing persisted; other failures are
		// reported through the stream by the caller.
		if ctx.Err() != nil {
			c.logger.Infof("chat stream cancelled for user %d video %s", userID, videoID)
			return ctx.Err()
		}
		return err
	}

	if err := c.store.SaveChatMessage(&ChatMessage{UserID: userID, VideoID: video.ID, Role: "assistant", Content: answer}); err != nil {
		c.logger.Errorf("failed to persist assistant message: %v", err)
	}
	return nil
}

// runToolLoop drives up to maxToolRounds LLM invocations, executing
// web_search calls between rounds. A nil emit runs the loop non-streaming.
func (c *ChatService) runToolLoop(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, emit func(StreamEvent) error) (string, error) {
	for round := 1; round <= maxToolRounds; round++ {
		req := ChatRequest{Messages: messages}
		if c.searcher != nil && round < maxToolRounds {
			req.Tools = []openai.ChatCompletionToolUnionParam{WebSearchTool()}
		}

		completion, calls, err := c.invokeRound(ctx, req, emit)
		if err != nil {
			return "", err
		}

		choice := completion.Choices[0]
		if string(choice.FinishReason) == finishReasonToolCalls && round < maxToolRounds && len(calls) > 0 {
			// record the assistant's tool-call turn, then answer each call
			// in call order
			messages = append(messages, choice.Message.ToParam())
			for _, call := range calls {
				if call.Name != WebSearchToolName {
					messages = append(messages, openai.ToolMessage("Unknown tool.", call.ID))
					continue
				}
				if emit != nil {
					if err := emit(StreamEvent{Type: "searching"}); err != nil {
						return "", err
					}
				}
				result := ExecuteWebSearch(ctx, c.searcher, call)
				messages = append(messages, openai.ToolMessage(result, call.ID))
			}
			continue
		}

		return strings.TrimSpace(choice.Message.Content), nil
	}

	return "", fmt.Errorf("model did not produce an answer within %d rounds", maxToolRounds)
}

// invokeRound performs one LLM invocation, streaming deltas when emit is
// set, and returns the completed response plus any assembled tool calls.
// While tools are on offer content deltas are held back until the round
// resolves; a round that ends in tool calls contributes no text to the
// stream, so the client only ever sees the answering round.
func (c *ChatService) invokeRound(ctx context.Context, req ChatRequest, emit func(StreamEvent) error) (*openai.ChatCompletion, []ToolCall, error) {
	if emit == nil {
		completion, err := c.llm.Invoke(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		return completion, callsFromCompletion(completion), nil
	}

	acc := NewToolCallAccumulator()
	hold := len(req.Tools) > 0
	var held []string
	completion, err := c.llm.InvokeStream(ctx, req, func(chunk StreamChunk) error {
		for _, delta := range chunk.ToolCallDeltas {
			acc.Add(delta)
		}
		if chunk.Content == "" {
			return nil
		}
		if hold {
			held = append(held, chunk.Content)
			return nil
		}
		return emit(StreamEvent{Type: "content", Content: chunk.Content})
	})
	if err != nil {
		return nil, nil, err
	}

	calls := acc.Calls()
	toolRound := string(completion.Choices[0].FinishReason) == finishReasonToolCalls && len(calls) > 0
	if hold && !toolRound {
		for _, content := range held {
			if err := emit(StreamEvent{Type: "content", Content: content}); err != nil {
				return nil, nil, err
			}
		}
	}
	return completion, calls, nil
}

// callsFromCompletion extracts tool calls from a non-streamed response
func callsFromCompletion(completion *openai.ChatCompletion) []ToolCall {
	var calls []ToolCall
	for _, tc := range completion.Choices[0].Message.ToolCalls {
		calls = append(calls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return calls
}

// Clear deletes the user's entire chat history for a video
func (c *ChatService) Clear(userID uint, videoID string) error {
	video, err := c.store.GetVideoByVideoID(videoID)
	if err != nil {
		return err
	}
	return c.store.ClearChatHistory(userID, video.ID)
}
