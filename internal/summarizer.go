package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
)

// summary placeholders used instead of propagating errors; a bad video must
// not break a multi-video batch
const (
	summaryNoContent = "No content available to summarize."
	summaryFailed    = "Failed to generate summary due to an error."
)

// duration buckets in seconds
const (
	shortVideoMax  = 300  // 5 minutes
	mediumVideoMax = 1200 // 20 minutes
)

// SummaryPair holds the two summaries produced for one video
type SummaryPair struct {
	Brief    string
	Detailed string
}

// Summarizer turns video content into brief and detailed summaries
type Summarizer struct {
	llm         LLM
	transcripts *TranscriptService
	provider    string
	language    string
	timeout     time.Duration
	logger      *Logger
}

// NewSummarizer creates a summarizer for the configured provider and
// target output language. A positive timeout bounds each generation.
func NewSummarizer(llm LLM, transcripts *TranscriptService, provider, language string, timeout time.Duration, logger *Logger) *Summarizer {
	if language == "" {
		language = "English"
	}
	return &Summarizer{
		llm:         llm,
		transcripts: transcripts,
		provider:    provider,
		language:    language,
		timeout:     timeout,
		logger:      logger,
	}
}

// GenerateVideoSummary produces a brief and a detailed summary for a video.
// It prefers the transcript, falling back to the description and then the
// title. Errors never propagate; they are logged and converted to a
// placeholder pair so batch callers keep going.
func (s *Summarizer) GenerateVideoSummary(ctx context.Context, video *Video) SummaryPair {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	content := s.videoContent(ctx, video)
	if strings.TrimSpace(content) == "" {
		return SummaryPair{Brief: summaryNoContent, Detailed: summaryNoContent}
	}

	limits := GetContextLimits(s.provider)
	lengthHint := lengthGuidance(video.Duration)

	brief, err := s.briefSummary(ctx, content, limits, lengthHint)
	if err != nil {
		s.logger.Errorf("brief summary failed for %s: %v", video.VideoID, err)
		return SummaryPair{Brief: summaryFailed, Detailed: summaryFailed}
	}

	detailed, err := s.detailedSummary(ctx, content, limits, lengthHint)
	if err != nil {
		s.logger.Errorf("detailed summary failed for %s: %v", video.VideoID, err)
		return SummaryPair{Brief: summaryFailed, Detailed: summaryFailed}
	}

	return SummaryPair{Brief: brief, Detailed: detailed}
}

// videoContent returns the best available source material for a video
func (s *Summarizer) videoContent(ctx context.Context, video *Video) string {
	transcript, err := s.transcripts.Get(ctx, video)
	if err == nil && strings.TrimSpace(transcript) != "" {
		return transcript
	}
	if err != nil {
		s.logger.Debugf("no transcript for %s, falling back to description: %v", video.VideoID, err)
	}
	if video.Description != "" {
		return video.Description
	}
	return video.Title
}

func (s *Summarizer) briefSummary(ctx context.Context, content string, limits ContextLimits, lengthHint string) (string, error) {
	prompt := fmt.Sprintf(`Summarize the key points of this video transcript in %s.
State the information directly, without meta phrases like "the video shows" or "the speaker says".

## One-line summary
(the core message in one sentence)

## Key points
(%s, each containing a concrete fact)

---
Transcript:
%s`, s.language, lengthHint, Truncate(content, limits.BriefTranscriptChars))

	resp, err := s.llm.Invoke(ctx, ChatRequest{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (s *Summarizer) detailedSummary(ctx context.Context, content string, limits ContextLimits, lengthHint string) (string, error) {
	system := fmt.Sprintf(`You are a professional content analyst.
Analyze the video transcript below and write a structured summary in %s.

Principles:
- State information directly. No meta phrases like "in the video" or "the speaker".
- Ignore auto-caption errors, repetitions, and filler; focus on substance.
- Concise and clear style, without dropping key information.

Output format:

## One-line summary
The core message in one sentence.

## Key points
- The most important content as %s.
- Each point is a complete sentence with concrete facts, figures, or claims.

## Details
Split by topic with subheadings (###), explaining each topic's core in 2-4 sentences. Include important examples, evidence, and quotes.

## Glossary
Select the key terms and explain each in one sentence.`, s.language, lengthHint)

	resp, err := s.llm.Invoke(ctx, ChatRequest{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage("Transcript:\n" + Truncate(content, limits.DetailedTranscriptChars)),
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// lengthGuidance maps a video's duration to the bullet-count guidance
// embedded in the prompts, so longer videos get longer summaries.
func lengthGuidance(durationSeconds int) string {
	switch {
	case durationSeconds > 0 && durationSeconds < shortVideoMax:
		return "3-5 bullet points"
	case durationSeconds > 0 && durationSeconds < mediumVideoMax:
		return "5-7 bullet points"
	case durationSeconds >= mediumVideoMax:
		return "7-10 bullet points"
	default:
		// unknown duration
		return "5-7 bullet points"
	}
}
