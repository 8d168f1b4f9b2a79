package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tubedigest/internal"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TubeDigest HTTP server",
	Long: `Run the HTTP API server.

The server handles accounts, channel subscriptions, background
summarization jobs, and streaming per-video chat. A daily scheduled job
checks every subscribed channel for new uploads.`,
	Example: `  # Run with the configured listen address
  tubedigest serve

  # Override the listen address
  tubedigest serve --addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			config.ListenAddr = addr
		}

		logger, err := internal.NewLogger(config.LogFile, config.LogLevel, config.Verbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		// yt-dlp is needed for transcript fetching
		internal.EnsureYtdlp(cmd.Context())

		store, err := internal.NewStore(config.DatabasePath)
		if err != nil {
			return err
		}

		auth, err := internal.NewAuth(store, config.JWTSecret, config.JWTExpiry)
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

		tasks := internal.NewTaskRegistry(logger)
		tasks.Start()
		defer tasks.Stop()

		mailer := internal.NewLogMailer(logger)
		pipeline := internal.NewPipeline(store, yt, summarizer, tasks, mailer, logger)

		scheduler, err := internal.NewScheduler(pipeline, config.Timezone, logger)
		if err != nil {
			return err
		}
		if err := scheduler.Start(config.CheckSchedule); err != nil {
			return err
		}
		defer scheduler.Stop()

		var searcher internal.WebSearcher
		if config.TavilyAPIKey != "" {
			searcher = internal.NewTavilyClient(config.TavilyAPIKey)
		} else {
			logger.Infof("no Tavily API key configured, chat web search disabled")
		}

		budgeter := internal.NewContextBudgeter(llm, logger)
		chat := internal.NewChatService(store, llm, budgeter, searcher, config.LLMProvider, config.TargetLanguage, logger)

		server := internal.NewServer(config, store, auth, pipeline, chat, tasks, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("shutdown error: %v", err)
		}
		pipeline.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides configuration)")
	rootCmd.AddCommand(serveCmd)
}
