package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes stored summaries and transcripts to MCP clients
type MCPServer struct {
	store       *Store
	transcripts *TranscriptService
	summarizer  *Summarizer
	youtube     YouTubeAPI
	mcpServer   *server.MCPServer
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(store *Store, transcripts *TranscriptService, summarizer *Summarizer, yt YouTubeAPI) *MCPServer {
	mcpServer := server.NewMCPServer(
		"tubedigest-server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		store:       store,
		transcripts: transcripts,
		summarizer:  summarizer,
		youtube:     yt,
		mcpServer:   mcpServer,
	}

	s.registerTools()

	return s
}

// registerTools registers all available MCP tools
func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_video_summary",
		mcp.WithDescription("Get a stored AI summary for a YouTube video. Returns both the brief and detailed summary if any user has one. Fails if the video has never been summarized - use summarize_video in that case."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or 11-character video ID"),
			mcp.Required(),
		),
	), s.handleGetSummary)

	s.mcpServer.AddTool(mcp.NewTool("get_video_transcript",
		mcp.WithDescription("Get the transcript of a YouTube video. Served from the cache when available, otherwise fetched from the video's captions. Fails if the video has no captions."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or 11-character video ID"),
			mcp.Required(),
		),
	), s.handleGetTranscript)

	s.mcpServer.AddTool(mcp.NewTool("summarize_video",
		mcp.WithDescription("Generate a fresh AI summary for a YouTube video from its transcript (or description when no captions exist). Calls the configured LLM, so it may take tens of seconds."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or 11-character video ID"),
			mcp.Required(),
		),
	), s.handleSummarize)
}

// lookupVideo resolves a URL or id to a stored video row, fetching metadata
// from YouTube for videos we have never seen.
func (s *MCPServer) lookupVideo(ctx context.Context, arg string) (*Video, error) {
	videoID, err := ExtractVideoID(arg)
	if err != nil {
		return nil, err
	}

	if video, err := s.store.GetVideoByVideoID(videoID); err == nil {
		return video, nil
	}

	details, err := s.youtube.VideoDetails(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return s.store.SaveVideo(&Video{
		VideoID:      details.VideoID,
		Title:        details.Title,
		Description:  details.Description,
		ChannelID:    details.ChannelID,
		ChannelTitle: details.ChannelTitle,
		Thumbnail:    details.Thumbnail,
		Duration:     details.Duration,
		PublishedAt:  details.PublishedAt,
	})
}

// handleGetSummary implements the get_video_summary tool
func (s *MCPServer) handleGetSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}

	videoID, err := ExtractVideoID(url)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid video reference", err), nil
	}

	video, err := s.store.GetVideoByVideoID(videoID)
	if err != nil {
		return mcp.NewToolResultError("video has never been summarized - use summarize_video"), nil
	}

	summaries, _, err := s.store.ListSummariesForVideo(video.ID)
	if err != nil || len(summaries) == 0 {
		return mcp.NewToolResultError("video has never been summarized - use summarize_video"), nil
	}

	summary := summaries[0]
	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("Title: %s\n", video.Title))
	buf.WriteString(fmt.Sprintf("Channel: %s\n\n", video.ChannelTitle))
	buf.WriteString("## Brief\n")
	buf.WriteString(summary.BriefSummary)
	buf.WriteString("\n\n## Detailed\n")
	buf.WriteString(summary.DetailedSummary)

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(buf.String())},
	}, nil
}

// handleGetTranscript implements the get_video_transcript tool
func (s *MCPServer) handleGetTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}

	video, err := s.lookupVideo(ctx, url)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("video lookup failed", err), nil
	}

	transcript, err := s.transcripts.Get(ctx, video)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("no captions available", err), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(transcript)},
	}, nil
}

// handleSummarize implements the summarize_video tool
func (s *MCPServer) handleSummarize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}

	video, err := s.lookupVideo(ctx, url)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("video lookup failed", err), nil
	}

	pair := s.summarizer.GenerateVideoSummary(ctx, video)

	var buf strings.Builder
	buf.WriteString("## Brief\n")
	buf.WriteString(pair.Brief)
	buf.WriteString("\n\n## Detailed\n")
	buf.WriteString(pair.Detailed)

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(buf.String())},
	}, nil
}

// Start starts the MCP server using the specified transport
func (s *MCPServer) Start(ctx context.Context, transport string, port int) error {
	if transport == "http" {
		httpServer := server.NewStreamableHTTPServer(s.mcpServer)
		addr := fmt.Sprintf(":%d", port)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return httpServer.Start(addr)
	}

	// Default to stdio transport
	return server.ServeStdio(s.mcpServer)
}
