package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultDigestModel = "claude-sonnet-4-5-20250929"

const digestSystemPrompt = `You write a short weekly digest for a Slack workspace based on message-count statistics.
You are given per-channel message totals and per-author counts for the past week.
Summarize the overall activity in 2-4 sentences: where the conversation happened, who was most active, and anything notable compared to a typical week.
Do not invent numbers that are not in the input. Plain text only, no headings.`

// GenerateActivityDigest asks the model for a prose summary of the week's
// numbers. Callers treat failure as non-fatal and post numbers-only.
func GenerateActivityDigest(cfg Config, activity string) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	message, err := client.Messages.New(context.Background(), anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.DigestModel),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: digestSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(activity)),
		},
	})
	if err != nil {
		log.Printf("digest anthropic error: %v", err)
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("digest anthropic response size=%d tokens_in=%d tokens_out=%d",
				len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}
