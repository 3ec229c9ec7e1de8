package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const extractionInstructions = `You extract decisions and action items from chat transcripts.
Analyze the numbered messages and return a JSON object with this structure:
{
    "decisions": [
        {
            "group_key": "short_stable_topic_key",
            "title": "what was decided",
            "status": "final" or "tentative",
            "confidence": 0-100,
            "explanation": "the stated outcome",
            "decided_at": "RFC3339 timestamp of the deciding message",
            "evidence": [message numbers]
        }
    ],
    "responsibilities": [
        {
            "title": "the task",
            "owner": "who committed, or empty",
            "due_date": "free text due date, or empty",
            "description": "details",
            "evidence": message number
        }
    ]
}
Group restatements and reactions about the same topic under one group_key.
Only report items with explicit message evidence. Return JSON only.`

type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewOpenAIProvider(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai/" + p.model }

func (p *OpenAIProvider) Extract(ctx context.Context, batch []BatchMessage) (*Result, error) {
	var b strings.Builder
	for _, msg := range batch {
		fmt.Fprintf(&b, "[%d] %s (%s): %s\n",
			msg.Ref, msg.Sender, msg.Timestamp.UTC().Format(time.RFC3339), msg.Body)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionInstructions},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
		MaxTokens:   p.maxTokens,
		Temperature: float32(p.temperature),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	result, err := Sanitize(resp.Choices[0].Message.Content, len(batch))
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Inference extraction complete",
		zap.String("provider", p.Name()),
		zap.Int("decisions", len(result.Decisions)),
		zap.Int("responsibilities", len(result.Responsibilities)))
	return result, nil
}
