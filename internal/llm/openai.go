package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAISource streams chat completions from the OpenAI API.
type OpenAISource struct {
	client          *openai.Client
	model           string
	reasoningEffort string
}

func NewOpenAISource(cfg Config) *OpenAISource {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	return &OpenAISource{
		client:          openai.NewClientWithConfig(clientCfg),
		model:           cfg.Model,
		reasoningEffort: strings.TrimSpace(cfg.ReasoningEffort),
	}
}

// Client exposes the underlying API client so the speech synthesizer can share it.
func (s *OpenAISource) Client() *openai.Client { return s.client }

func (s *OpenAISource) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 3)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	// The running transcript is replayed as one assistant turn.
	if req.UseMemory && strings.TrimSpace(req.Memory) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: req.Memory})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserInput})

	return openai.ChatCompletionRequest{
		Model:           s.model,
		Messages:        msgs,
		Stream:          stream,
		ReasoningEffort: s.reasoningEffort,
	}
}

func (s *OpenAISource) OpenStream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	stream, err := s.client.CreateChatCompletionStream(ctx, s.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}

	out := make(chan Event, 32)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(ctx, out, Completed())
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[llm] openai stream recv failed: %v", err)
				// A broken transport cannot resume; closing without Completed
				// lets the consumer flush what it already has.
				send(ctx, out, ErrorEvent(err.Error()))
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ctx, out, TextDelta(choice.Delta.Content)) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *OpenAISource) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	resp, err := s.client.CreateChatCompletion(ctx, s.buildRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Health validates the API key with a cheap authenticated call.
func (s *OpenAISource) Health(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai api key check: %w", err)
	}
	return nil
}
