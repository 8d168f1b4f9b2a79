package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tubedigest/internal"
)

// summarizeCmd represents the summarize command
var summarizeCmd = &cobra.Command{
	Use:   "summarize [YouTube URL or ID]",
	Short: "Summarize a single YouTube video from the command line",
	Long: `Summarize one video without running the server.

The transcript is fetched from the video's captions and cached in the
local database, then the configured LLM produces a brief and a detailed
summary printed to stdout.`,
	Example: `  # Summarize a video
  tubedigest summarize "https://www.youtube.com/watch?v=tAP1eZYEuKA"
  tubedigest summarize tAP1eZYEuKA`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoID, err := internal.ExtractVideoID(args[0])
		if err != nil {
			return err
		}

		logger, err := internal.NewLogger("", config.LogLevel, config.Verbose)
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
		details, err := yt.VideoDetails(cmd.Context(), videoID)
		if err != nil {
			return err
		}

		video, err := store.SaveVideo(&internal.Video{
			VideoID:      details.VideoID,
			Title:        details.Title,
			Description:  details.Description,
			ChannelID:    details.ChannelID,
			ChannelTitle: details.ChannelTitle,
			Thumbnail:    details.Thumbnail,
			Duration:     details.Duration,
			PublishedAt:  details.PublishedAt,
		})
		if err != nil {
			return err
		}

		llm := internal.NewOpenAIClient(config.LLMAPIKey, config.LLMBaseURL, config.LLMModel)
		fetcher := internal.NewYtdlpFetcher(config.CacheDir, config.TranscriptTimeout, logger)
		transcripts := internal.NewTranscriptService(store, fetcher, logger)
		summarizer := internal.NewSummarizer(llm, transcripts, config.LLMProvider, config.TargetLanguage, config.SummaryTimeout, logger)

		pair := summarizer.GenerateVideoSummary(cmd.Context(), video)

		fmt.Printf("%s (%s)\n\n", video.Title, video.ChannelTitle)
		fmt.Println("## Brief")
		fmt.Println(pair.Brief)
		fmt.Println()
		fmt.Println("## Detailed")
		fmt.Println(pair.Detailed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}
