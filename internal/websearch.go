package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"resty.dev/v3"
)

const (
	tavilyEndpoint = "https://api.tavily.com/search"

	// bounds on what is handed back to the model as tool output
	maxSearchResults      = 5
	maxResultContentChars = 500
)

// SearchResult is one hit from the web search backend
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// WebSearcher performs a web search for the chat tool loop
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// TavilyClient implements WebSearcher against the Tavily search API
type TavilyClient struct {
	client *resty.Client
	apiKey string
}

// NewTavilyClient creates a Tavily-backed searcher
func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{client: resty.New(), apiKey: apiKey}
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []SearchResult `json:"results"`
}

// Search runs one query and returns at most maxSearchResults hits with
// their content truncated.
func (t *TavilyClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var out tavilyResponse
	res, err := t.client.R().
		SetContext(ctx).
		SetBody(tavilyRequest{APIKey: t.apiKey, Query: query, MaxResults: maxSearchResults}).
		SetResult(&out).
		Post(tavilyEndpoint)
	if err != nil {
		return nil, fmt.Errorf("searching the web: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("search API returned %s", res.Status())
	}

	results := out.Results
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	for i := range results {
		results[i].Content = Truncate(results[i].Content, maxResultContentChars)
	}
	return results, nil
}

// FormatSearchResults renders results as numbered plain text for the model
func FormatSearchResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return strings.TrimSpace(sb.String())
}

// WebSearchToolName is the function name offered to the model
const WebSearchToolName = "web_search"

// WebSearchTool is the tool definition offered during chat rounds
func WebSearchTool() openai.ChatCompletionToolUnionParam {
	return openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        WebSearchToolName,
		Description: openai.String("Search the web for current information not covered by the video context."),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
	})
}

// ExecuteWebSearch runs an assembled web_search tool call and returns the
// text to hand back as the tool message.
func ExecuteWebSearch(ctx context.Context, searcher WebSearcher, call ToolCall) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return "Invalid search arguments."
	}

	results, err := searcher.Search(ctx, args.Query)
	if err != nil {
		return fmt.Sprintf("Search failed: %v", err)
	}
	return FormatSearchResults(results)
}
