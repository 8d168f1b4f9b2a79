package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tubedigest/internal"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server exposing TubeDigest tools",
	Long: `Run a Model Context Protocol (MCP) server that exposes TubeDigest
functionality as tools.

The MCP server provides three tools:
- get_video_summary: Read a stored summary for a video
- get_video_transcript: Fetch or read the cached transcript of a video
- summarize_video: Generate a fresh summary with the configured LLM

Transport options:
- stdio (default): Standard MCP transport via stdin/stdout
- http: HTTP transport on specified port (use --port to configure)`,
	Example: `  # Run MCP server with stdio transport (e.g. for Claude Desktop)
  tubedigest mcp

  # Run MCP server with HTTP transport on port 8081
  tubedigest mcp --transport=http --port=8081`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// MCP uses the stdio protocol, keep stdout clean
		config.Verbose = false
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		logger, err := internal.NewLogger(config.LogFile, config.LogLevel, false)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		internal.EnsureYtdlp(cmd.Context())

		store, err := internal.NewStore(config.DatabasePath)
		if err != nil {
			return err
		}

		yt, err := internal.NewYouTubeClient(cmd.Context(), config.YouTubeAPIKey, logger)
		if err != nil {
			return err
		}

		llm := internal.NewOpenAIClient(config.LLMAPIKey, config.LLMBaseURL, config.LLMModel)
		fetcher := internal.NewYtdlpFetcher(config.CacheDir, config.TranscriptTimeout, logger)
		transcripts := internal.NewTranscriptService(store, fetcher, logger)
		summarizer := internal.NewSummarizer(llm, transcripts, config.LLMProvider, config.TargetLanguage, config.SummaryTimeout, logger)

		mcpServer := internal.NewMCPServer(store, transcripts, summarizer, yt)

		// Start the server (this will block until context is cancelled)
		return mcpServer.Start(cmd.Context(), transport, port)
	},
}

func init() {
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol (stdio or http)")
	mcpCmd.Flags().Int("port", 8081, "Port for HTTP transport (only used with --transport=http)")
	rootCmd.AddCommand(mcpCmd)
}
