package internal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go/v2"
)

func newTestChat(t *testing.T, store *Store, llm LLM, searcher WebSearcher) *ChatService {
	t.Helper()
	logger := NewTestLogger()
	budgeter := NewContextBudgeter(llm, logger)
	return NewChatService(store, llm, budgeter, searcher, "openai", "English", logger)
}

func chatVideo(t *testing.T, store *Store) *Video {
	t.Helper()
	video, err := store.SaveVideo(&Video{VideoID: "dQw4w9WgXcQ", Title: "Talk", Duration: 600})
	if err != nil {
		t.Fatalf("SaveVideo error: %v", err)
	}
	return video
}

// toolCallCompletion scripts a response asking for one web search
func toolCallCompletion(callID, arguments string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "tool_calls",
			Message: openai.ChatCompletionMessage{
				Role: "assistant",
				ToolCalls: []openai.ChatCompletionMessageToolCallUnion{{
					ID:   callID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      WebSearchToolName,
						Arguments: arguments,
					},
				}},
			},
		}},
	}
}

func TestSendPersistsBothTurns(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	llm := &fakeLLM{responses: []fakeResponse{{completion: textCompletion("the answer", "stop")}}}
	chat := newTestChat(t, store, llm, nil)

	answer, err := chat.Send(context.Background(), user.ID, video.VideoID, "what is this about?")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if answer != "the answer" {
		t.Errorf("got %q", answer)
	}

	history, err := store.GetChatHistory(user.ID, video.ID)
	if err != nil {
		t.Fatalf("GetChatHistory error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d turns, want 2", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "what is this about?" {
		t.Errorf("user turn: %+v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "the answer" {
		t.Errorf("assistant turn: %+v", history[1])
	}

	// without a searcher the model is offered no tools
	if len(llm.requests[0].Tools) != 0 {
		t.Error("tools offered without a configured searcher")
	}
}

func TestSendUnknownVideo(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	chat := newTestChat(t, store, &fakeLLM{responses: []fakeResponse{{completion: textCompletion("x", "stop")}}}, nil)

	if _, err := chat.Send(context.Background(), user.ID, "aaaaaaaaaaa", "hello"); err == nil {
		t.Error("expected error for unknown video")
	}
}

func TestSendFailureRemovesPlaceholder(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	llm := &fakeLLM{err: errors.New("provider down")}
	chat := newTestChat(t, store, llm, nil)

	if _, err := chat.Send(context.Background(), user.ID, video.VideoID, "hello"); err == nil {
		t.Fatal("expected error")
	}

	// the user's turn stays, the empty assistant placeholder does not
	history, _ := store.GetChatHistory(user.ID, video.ID)
	if len(history) != 1 || history[0].Role != "user" {
		t.Errorf("history after failure: %+v", history)
	}
}

func TestSendRunsWebSearchTool(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	llm := &fakeLLM{responses: []fakeResponse{
		{completion: toolCallCompletion("call_1", `{"query": "release date"}`)},
		{completion: textCompletion("released in 2024", "stop")},
	}}
	searcher := &fakeSearcher{results: []SearchResult{
		{Title: "Announcement", URL: "https://example.com", Content: "shipped in 2024"},
	}}
	chat := newTestChat(t, store, llm, searcher)

	answer, err := chat.Send(context.Background(), user.ID, video.VideoID, "when was it released?")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if answer != "released in 2024" {
		t.Errorf("got %q", answer)
	}

	if len(searcher.queries) != 1 || searcher.queries[0] != "release date" {
		t.Errorf("searcher queries: %v", searcher.queries)
	}
	if len(llm.requests[0].Tools) == 0 {
		t.Error("first round offered no tools")
	}

	// second round carries the tool result addressed to the call id
	second := llm.requests[1].Messages
	last := second[len(second)-1].OfTool
	if last == nil {
		t.Fatal("last message of round 2 is not a tool message")
	}
	if last.ToolCallID != "call_1" {
		t.Errorf("tool call id %q", last.ToolCallID)
	}
	result := last.Content.OfString.Value
	if !strings.Contains(result, "Announcement") || !strings.Contains(result, "shipped in 2024") {
		t.Errorf("tool result %q", result)
	}
}

func TestToolLoopIsBounded(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	// the model asks for a search every single round
	llm := &fakeLLM{responses: []fakeResponse{
		{completion: toolCallCompletion("call_1", `{"query": "q"}`)},
	}}
	searcher := &fakeSearcher{}
	chat := newTestChat(t, store, llm, searcher)

	if _, err := chat.Send(context.Background(), user.ID, video.VideoID, "hello"); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	if llm.callCount() != maxToolRounds {
		t.Errorf("made %d LLM calls, want %d", llm.callCount(), maxToolRounds)
	}
	// searches run only between rounds, never after the last one
	if len(searcher.queries) != maxToolRounds-1 {
		t.Errorf("ran %d searches, want %d", len(searcher.queries), maxToolRounds-1)
	}
	// the final round withdraws the tool to force a text answer
	finalReq := llm.requests[len(llm.requests)-1]
	if len(finalReq.Tools) != 0 {
		t.Error("tools still offered on the final round")
	}
}

func TestUnknownToolGetsErrorResult(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	bogus := toolCallCompletion("call_1", `{}`)
	bogus.Choices[0].Message.ToolCalls[0].Function.Name = "delete_everything"
	llm := &fakeLLM{responses: []fakeResponse{
		{completion: bogus},
		{completion: textCompletion("done", "stop")},
	}}
	searcher := &fakeSearcher{}
	chat := newTestChat(t, store, llm, searcher)

	if _, err := chat.Send(context.Background(), user.ID, video.VideoID, "hello"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(searcher.queries) != 0 {
		t.Error("unknown tool reached the searcher")
	}
	second := llm.requests[1].Messages
	last := second[len(second)-1].OfTool
	if last == nil || last.Content.OfString.Value != "Unknown tool." {
		t.Error("unknown tool not answered with an error result")
	}
}

func TestStreamEmitsSearchingThenContent(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	toolResp := toolCallCompletion("call_1", `{"query": "news"}`)
	llm := &fakeLLM{responses: []fakeResponse{
		{
			// tool arguments arrive fragmented across chunks
			chunks: []StreamChunk{
				{ToolCallDeltas: []ToolCallDelta{{Index: 0, ID: "call_1", Name: WebSearchToolName, Arguments: `{"query"`}}},
				{ToolCallDeltas: []ToolCallDelta{{Index: 0, Arguments: `: "news"}`}}, FinishReason: "tool_calls"},
			},
			completion: toolResp,
		},
		{
			chunks: []StreamChunk{
				{Content: "Hello"},
				{Content: " world", FinishReason: "stop"},
			},
			completion: textCompletion("Hello world", "stop"),
		},
	}}
	searcher := &fakeSearcher{results: []SearchResult{{Title: "T", URL: "u", Content: "c"}}}
	chat := newTestChat(t, store, llm, searcher)

	var events []StreamEvent
	err := chat.Stream(context.Background(), user.ID, video.VideoID, "hello", func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	want := []StreamEvent{
		{Type: "searching"},
		{Type: "content", Content: "Hello"},
		{Type: "content", Content: " world"},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
	if searcher.queries[0] != "news" {
		t.Errorf("fragmented arguments reassembled to %q", searcher.queries[0])
	}

	history, _ := store.GetChatHistory(user.ID, video.ID)
	if len(history) != 2 || history[1].Content != "Hello world" {
		t.Errorf("history: %+v", history)
	}
}

func TestStreamDropsContentFromToolRounds(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	llm := &fakeLLM{responses: []fakeResponse{
		{
			// the model narrates before deciding to search; that text
			// must never reach the client
			chunks: []StreamChunk{
				{Content: "Let me look that up."},
				{ToolCallDeltas: []ToolCallDelta{{Index: 0, ID: "call_1", Name: WebSearchToolName, Arguments: `{"query": "news"}`}}, FinishReason: "tool_calls"},
			},
			completion: toolCallCompletion("call_1", `{"query": "news"}`),
		},
		{
			chunks:     []StreamChunk{{Content: "The answer.", FinishReason: "stop"}},
			completion: textCompletion("The answer.", "stop"),
		},
	}}
	searcher := &fakeSearcher{results: []SearchResult{{Title: "T", URL: "u", Content: "c"}}}
	chat := newTestChat(t, store, llm, searcher)

	var events []StreamEvent
	err := chat.Stream(context.Background(), user.ID, video.VideoID, "hello", func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	want := []StreamEvent{
		{Type: "searching"},
		{Type: "content", Content: "The answer."},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}

	history, _ := store.GetChatHistory(user.ID, video.ID)
	if len(history) != 2 || history[1].Content != "The answer." {
		t.Errorf("history: %+v", history)
	}
}

func TestStreamCancelledClientPersistsNothing(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	llm := &fakeLLM{responses: []fakeResponse{{
		chunks:     []StreamChunk{{Content: "partial"}},
		completion: textCompletion("partial answer", "stop"),
	}}}
	chat := newTestChat(t, store, llm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := chat.Stream(ctx, user.ID, video.VideoID, "hello", func(ev StreamEvent) error {
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	history, _ := store.GetChatHistory(user.ID, video.ID)
	for _, msg := range history {
		if msg.Role == "assistant" {
			t.Error("assistant turn persisted after cancellation")
		}
	}
}

func TestClearChatHistory(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "a@example.com")
	video := chatVideo(t, store)
	llm := &fakeLLM{responses: []fakeResponse{{completion: textCompletion("answer", "stop")}}}
	chat := newTestChat(t, store, llm, nil)

	if _, err := chat.Send(context.Background(), user.ID, video.VideoID, "hello"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if err := chat.Clear(user.ID, video.VideoID); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	history, _ := store.GetChatHistory(user.ID, video.ID)
	if len(history) != 0 {
		t.Errorf("history not cleared, %d turns left", len(history))
	}

	if err := chat.Clear(user.ID, "aaaaaaaaaaa"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown video, got %v", err)
	}
}
