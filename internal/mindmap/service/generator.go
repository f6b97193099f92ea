package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"whiteboard/internal/mindmap/model"
)

const systemPrompt = "You are an expert at generating mind-map structures. " +
	"Return ONLY a JSON array of node objects, each with keys: " +
	`"id" (UUID), "parent" (UUID or null), "content" (string), "metadata" (object).`

// rawPreviewLength bounds how much of an unusable reply is echoed back to the client.
const rawPreviewLength = 200

var arraySpan = regexp.MustCompile(`(?s)\[.*\]`)

// GroqGenerator asks an OpenAI compatible chat-completion endpoint for mind-map nodes.
type GroqGenerator struct {
	Client    *openai.Client
	Model     string
	MaxTokens int // omitted from the request when zero
}

// NewGroqGenerator points an OpenAI client at baseURL, e.g. https://api.groq.com/openai/v1.
func NewGroqGenerator(baseURL, apiKey, model string, timeout time.Duration) *GroqGenerator {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &GroqGenerator{
		Client:    openai.NewClientWithConfig(cfg),
		Model:     model,
		MaxTokens: 32768,
	}
}

// Generate returns the raw JSON node objects proposed for topic.
func (g *GroqGenerator) Generate(ctx context.Context, topic string) ([]map[string]any, error) {
	raw, err := g.complete(ctx, topic)
	if err != nil {
		return nil, &model.GenerationError{Detail: "Groq request failed", Cause: err.Error()}
	}
	return parseNodes(raw)
}

func (g *GroqGenerator) complete(ctx context.Context, topic string) (string, error) {
	resp, err := g.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Create a mind-map for the topic: “%s”", topic)},
		},
		// A zero temperature is dropped by omitempty and the endpoint would use its default.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   g.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// parseNodes reads raw as a JSON array, falling back to the first bracketed span
// when the model wrapped the array in prose or code fences. A bare null is not an array.
func parseNodes(raw string) ([]map[string]any, error) {
	var nodes []map[string]any
	if err := json.Unmarshal([]byte(raw), &nodes); err == nil && nodes != nil {
		return nodes, nil
	}

	span := arraySpan.FindString(raw)
	if span == "" {
		return nil, &model.GenerationError{Detail: "No JSON array found", Raw: preview(raw)}
	}
	nodes = nil
	if err := json.Unmarshal([]byte(span), &nodes); err != nil {
		return nil, &model.GenerationError{Detail: "Failed to parse JSON", Cause: err.Error(), Raw: preview(raw)}
	}
	return nodes, nil
}

func preview(raw string) string {
	r := []rune(raw)
	if len(r) > rawPreviewLength {
		r = r[:rawPreviewLength]
	}
	return string(r) + "…"
}
