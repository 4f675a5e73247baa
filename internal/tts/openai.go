package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// openAIMaxInput is the longest input the speech endpoint accepts.
const openAIMaxInput = 4096

// OpenAIClient synthesizes speech with the OpenAI audio/speech endpoint.
// Implements the Synthesizer interface.
type OpenAIClient struct {
	client *openai.Client
	model  string
	voice  string
	log    zerolog.Logger
}

// NewOpenAIClient creates an OpenAI TTS client. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL, model, voice string, log zerolog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		voice:  voice,
		log:    log.With().Str("component", "tts-openai").Logger(),
	}
}

// Name returns the provider name.
func (o *OpenAIClient) Name() string { return "openai" }

// Synthesize returns MP3 audio. The language is inferred by the model from
// the text, so lang is only logged.
func (o *OpenAIClient) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	tokens := Tokenize(text, openAIMaxInput)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}
	o.log.Debug().
		Str("model", o.model).
		Str("voice", o.voice).
		Str("lang", lang).
		Int("requests", len(tokens)).
		Msg("synthesizing")

	var out bytes.Buffer
	for i, tok := range tokens {
		resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(o.model),
			Input:          tok,
			Voice:          openai.SpeechVoice(o.voice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return nil, fmt.Errorf("openai speech %d/%d: %w", i+1, len(tokens), err)
		}
		_, err = io.Copy(&out, resp)
		resp.Close()
		if err != nil {
			return nil, fmt.Errorf("read speech audio: %w", err)
		}
	}
	return out.Bytes(), nil
}
