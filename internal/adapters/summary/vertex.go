package summary

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

type VertexSummarizer struct {
	client    *genai.Client
	modelName string
}

// NewVertexSummarizer creates a Summarizer backed by Vertex AI (Gemini).
func NewVertexSummarizer(ctx context.Context, projectID, location, modelName string) (*VertexSummarizer, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("project and location are required for Vertex AI")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash-lite"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexSummarizer{
		client:    client,
		modelName: modelName,
	}, nil
}

// Summarize implements domain.Summarizer using Vertex AI.
func (v *VertexSummarizer) Summarize(ctx context.Context, in domain.SummaryInput) (string, error) {
	prompt := BuildPrompt(in)

	temp := float32(0.2)
	cfg := &genai.GenerateContentConfig{
		// Vertex expects the system instruction as a user-role content.
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   512,
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)}

	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("vertex returned empty text")
	}
	return text, nil
}
