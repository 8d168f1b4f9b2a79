package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
)

// recentWindowRatio is the share of the history budget reserved for the
// most recent turns when compaction engages.
const recentWindowRatio = 0.8

// EstimateTokens approximates the token count of a message. It is a crude
// heuristic (about two characters per token); good enough for budgeting,
// never used for billing.
func EstimateTokens(text string) int {
	runes := len([]rune(text))
	return (runes + 1) / 2
}

// ContextBudgeter fits a system prompt, chat history, and new user message
// into the provider's input token budget, compacting old turns into a short
// synopsis when the history does not fit.
type ContextBudgeter struct {
	llm    LLM
	logger *Logger
}

// NewContextBudgeter creates a budgeter that uses llm for compaction
func NewContextBudgeter(llm LLM, logger *Logger) *ContextBudgeter {
	return &ContextBudgeter{llm: llm, logger: logger}
}

// BuildChatMessages returns the message list to submit for one chat turn.
// Short conversations pass through untouched. Once the history exceeds its
// budget, the most recent turns are kept verbatim inside an 80% window and
// everything older is summarized into the system prompt.
func (b *ContextBudgeter) BuildChatMessages(ctx context.Context, systemPrompt string, history []ChatMessage, userMessage, provider string) []openai.ChatCompletionMessageParamUnion {
	limits := GetContextLimits(provider)

	budgetForHistory := limits.InputTokenBudget - EstimateTokens(systemPrompt) - EstimateTokens(userMessage)
	if budgetForHistory < 0 {
		budgetForHistory = 0
	}

	historyTokens := 0
	for _, msg := range history {
		historyTokens += EstimateTokens(msg.Content)
	}

	if historyTokens <= budgetForHistory {
		return assemble(systemPrompt, history, userMessage)
	}

	// Walk backward from the newest turn, keeping as much recency as fits
	// in the reserved window.
	recentBudget := int(float64(budgetForHistory) * recentWindowRatio)
	boundary := len(history)
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content)
		if used+cost > recentBudget {
			break
		}
		used += cost
		boundary = i
	}

	old := history[:boundary]
	recent := history[boundary:]

	if len(old) > 0 {
		synopsis, err := b.compact(ctx, old)
		if err != nil {
			// Degrade to dropping the old turns rather than failing the chat
			if b.logger != nil {
				b.logger.Warnf("history compaction failed, dropping %d old turns: %v", len(old), err)
			}
		} else if synopsis != "" {
			systemPrompt += "\n\nEarlier conversation summary: " + synopsis
		}
	}

	return assemble(systemPrompt, recent, userMessage)
}

// compact asks the LLM for a short synopsis of the old turns
func (b *ContextBudgeter) compact(ctx context.Context, old []ChatMessage) (string, error) {
	var sb strings.Builder
	for _, msg := range old {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}

	resp, err := b.llm.Invoke(ctx, ChatRequest{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Summarize the following conversation in 3-5 sentences, keeping the facts and decisions that matter for continuing it:\n\n" + sb.String()),
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func assemble(systemPrompt string, history []ChatMessage, userMessage string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, msg := range history {
		if msg.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		} else {
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMessage))
	return messages
}

// system prompt field caps, keeps one video's context well under the budget
const (
	maxPromptDescription = 1500
	maxPromptSummary     = 4000
	maxPromptTranscript  = 8000
)

// BuildSystemPrompt renders the per-video chat instructions with the video's
// metadata, summary, and a transcript excerpt, each length-capped.
func BuildSystemPrompt(video *Video, summary *Summary, transcript, targetLanguage string, webSearch bool) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful assistant answering questions about a YouTube video.\n\n")
	fmt.Fprintf(&sb, "Video title: %s\n", video.Title)
	fmt.Fprintf(&sb, "Channel: %s\n", video.ChannelTitle)
	if video.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", Truncate(video.Description, maxPromptDescription))
	}
	if summary != nil {
		// fall back to the brief summary when no detailed one was produced
		text := summary.DetailedSummary
		if text == "" {
			text = summary.BriefSummary
		}
		if text != "" {
			fmt.Fprintf(&sb, "\nVideo summary:\n%s\n", Truncate(text, maxPromptSummary))
		}
	}
	if transcript != "" {
		fmt.Fprintf(&sb, "\nTranscript excerpt:\n%s\n", Truncate(transcript, maxPromptTranscript))
	}

	sb.WriteString("\nAnswer based on the video context above.")
	if webSearch {
		sb.WriteString(" Use the web_search tool only when the video context is insufficient to answer.")
	}
	fmt.Fprintf(&sb, " Respond in %s.", targetLanguage)

	return sb.String()
}
