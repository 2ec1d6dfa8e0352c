// README: Gemini-backed case summaries for the manual review queue.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Summarizer produces a short natural-language summary of a safety case for
// human reviewers. It never scores or decides anything; the summary is
// advisory text attached alongside the raw evidence.
type Summarizer interface {
	Summarize(ctx context.Context, caseText string) (string, error)
}

// GeminiSummarizer implements Summarizer using Google's Gemini models.
type GeminiSummarizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiSummarizer(ctx context.Context, apiKey string) (*GeminiSummarizer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Flash keeps latency and cost low; summaries are short.
	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.2)

	return &GeminiSummarizer{client: client, model: model}, nil
}

func (s *GeminiSummarizer) Close() {
	s.client.Close()
}

const summaryPrompt = `You are drafting a neutral case summary for a trip-safety reviewer.
Summarize the incident below in at most three sentences. State only facts
present in the input. Do not recommend an outcome or assign blame.

Incident:
%s`

func (s *GeminiSummarizer) Summarize(ctx context.Context, caseText string) (string, error) {
	resp, err := s.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(summaryPrompt, caseText)))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(out.String()), nil
}
