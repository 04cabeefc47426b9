package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ent0n29/rvcchat/internal/reliability"
)

// OpenAISynthesizer calls the OpenAI speech endpoint and asks for WAV output.
type OpenAISynthesizer struct {
	client     *openai.Client
	model      string
	voice      string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

func NewOpenAISynthesizer(cfg Config) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	s := &OpenAISynthesizer{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		voice:      cfg.Voice,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
	if s.model == "" {
		s.model = "gpt-4o-mini-tts"
	}
	if s.voice == "" {
		s.voice = "coral"
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	if s.retryDelay <= 0 {
		s.retryDelay = 250 * time.Millisecond
	}
	return s, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, style string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var audio []byte
	err := reliability.Retry(ctx, s.maxRetries, s.retryDelay, 4*time.Second, isRetryable, func() error {
		var err error
		audio, err = s.synthesizeOnce(ctx, text, style)
		return err
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (s *OpenAISynthesizer) synthesizeOnce(ctx context.Context, text, style string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		Instructions:   style,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech body: %w", err)
	}
	return audio, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Provider: "openai"}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.Error()
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: msg, Provider: "openai"}
	}
	return fmt.Errorf("tts [openai]: %w", err)
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return reliability.IsRetryableNetError(err)
}
