package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OpenAIBackend talks to an OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	client   openai.Client
	settings Settings
}

var _ Backend = (*OpenAIBackend)(nil)

func NewOpenAIBackend(s *Settings, opts ...option.RequestOption) *OpenAIBackend {
	reqOpts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
	if s.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIBackend{
		client:   openai.NewClient(reqOpts...),
		settings: *s,
	}
}

func (b *OpenAIBackend) params(req Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Conversation)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, t := range req.Conversation {
		switch t.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}

	model := b.settings.Model
	if req.Model != "" {
		model = req.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    model,
		// 0 is a valid temperature, the config layer supplies the default
		Temperature: param.NewOpt(b.settings.Temperature),
	}
	if b.settings.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(b.settings.MaxTokens))
	}

	log.Info().Str("component", "llm").Str("model", model).Msg("chat completion request")
	logPayload(req)
	return params
}

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := b.client.Chat.Completions.New(ctx, b.params(req))
	if err != nil {
		return "", &BackendError{Op: "complete", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Op: "complete", Err: errors.New("no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *OpenAIBackend) Stream(ctx context.Context, req Request) (Stream, error) {
	s := b.client.Chat.Completions.NewStreaming(ctx, b.params(req))
	if s == nil {
		return nil, &BackendError{Op: "stream", Err: errors.New("no stream returned")}
	}
	return &openAIStream{stream: s}, nil
}

type openAIStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	current string
}

func (o *openAIStream) Next() bool {
	for o.stream.Next() {
		chunk := o.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if s := chunk.Choices[0].Delta.Content; s != "" {
			o.current = s
			return true
		}
	}
	o.current = ""
	return false
}

func (o *openAIStream) Current() string {
	return o.current
}

func (o *openAIStream) Err() error {
	if err := o.stream.Err(); err != nil {
		return &BackendError{Op: "stream", Err: err}
	}
	return nil
}

func (o *openAIStream) Close() error {
	return o.stream.Close()
}
