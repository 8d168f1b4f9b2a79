package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v2"
)

// newTestStore opens a throwaway SQLite database
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, store *Store, email string) *User {
	t.Helper()
	user := &User{Email: email, PasswordHash: "x"}
	if err := store.CreateUser(user); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

func textCompletion(content, finishReason string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: finishReason,
			Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
		}},
	}
}

// fakeLLM scripts completions. Each Invoke/InvokeStream consumes the next
// scripted response; when the script runs out the last response repeats.
type fakeLLM struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
	requests  []ChatRequest
	err       error
}

type fakeResponse struct {
	completion *openai.ChatCompletion
	// chunks are emitted before the completion is returned by InvokeStream
	chunks []StreamChunk
}

func (f *fakeLLM) next(req ChatRequest) fakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i]
}

func (f *fakeLLM) Invoke(ctx context.Context, req ChatRequest) (*openai.ChatCompletion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.next(req).completion, nil
}

func (f *fakeLLM) InvokeStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk) error) (*openai.ChatCompletion, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := f.next(req)
	for _, chunk := range resp.chunks {
		if err := onChunk(chunk); err != nil {
			return nil, err
		}
	}
	return resp.completion, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeFetcher scripts transcript downloads per video id
type fakeFetcher struct {
	mu          sync.Mutex
	transcripts map[string]string
	err         error
	fetches     int
}

func (f *fakeFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return "", f.err
	}
	text, ok := f.transcripts[videoID]
	if !ok {
		return "", fmt.Errorf("%w for %s", ErrNoTranscript, videoID)
	}
	return text, nil
}

// fakeYouTube serves scripted channels and videos
type fakeYouTube struct {
	mu       sync.Mutex
	channels map[string]ChannelInfo
	videos   map[string][]VideoInfo // keyed by channel id
	details  map[string]VideoInfo   // keyed by video id
	err      error
}

func (f *fakeYouTube) ResolveChannel(ctx context.Context, query string) (*ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if ch, ok := f.channels[query]; ok {
		return &ch, nil
	}
	return nil, fmt.Errorf("no channel found for %q", query)
}

func (f *fakeYouTube) ChannelVideos(ctx context.Context, channelID string, limit int, publishedAfter time.Time) ([]VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	videos := f.videos[channelID]
	if len(videos) > limit {
		videos = videos[:limit]
	}
	return videos, nil
}

func (f *fakeYouTube) VideoDetails(ctx context.Context, videoID string) (*VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if info, ok := f.details[videoID]; ok {
		return &info, nil
	}
	return nil, fmt.Errorf("video not found: %s", videoID)
}

// fakeSearcher records queries and returns fixed results
type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	results []SearchResult
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// newTestSummarizer wires a summarizer over fakes
func newTestSummarizer(t *testing.T, store *Store, llm LLM, fetcher TranscriptFetcher) *Summarizer {
	t.Helper()
	logger := NewTestLogger()
	transcripts := NewTranscriptService(store, fetcher, logger)
	return NewSummarizer(llm, transcripts, "openai", "English", 0, logger)
}
