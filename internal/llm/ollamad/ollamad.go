package ollamad

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/trace"
)

// Adapter talks to a local Ollama-compatible model server. It exposes
// both the plain generate and the chat call conventions.
type Adapter struct {
	id       string
	model    string
	endpoint string
	temp     float64
	client   *resty.Client
}

var _ interfaces.Generator = (*Adapter)(nil)
var _ interfaces.ChatModel = (*Adapter)(nil)

func New(id, endpoint, model string, temp float64) *Adapter {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:11434"
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(120 * time.Second).
		SetRetryCount(0)
	return &Adapter{id: id, model: model, endpoint: endpoint, temp: temp, client: client}
}

func (a *Adapter) ID() string { return a.id }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (a *Adapter) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "ollamad.generate")
	defer span.End()

	var out generateResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(generateRequest{
			Model:   a.model,
			Prompt:  prompt,
			Stream:  false,
			Options: map[string]any{"temperature": a.temp},
		}).
		SetResult(&out).
		Post("/api/generate")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("model server http %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}

type chatRequest struct {
	Model    string                   `json:"model"`
	Messages []interfaces.ChatMessage `json:"messages"`
	Stream   bool                     `json:"stream"`
}

type chatResponse struct {
	Message interfaces.ChatMessage `json:"message"`
	Error   string                 `json:"error,omitempty"`
}

func (a *Adapter) Chat(ctx context.Context, messages []interfaces.ChatMessage) (string, error) {
	ctx, span := trace.StartSpan(ctx, "ollamad.chat")
	defer span.End()

	var out chatResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(chatRequest{Model: a.model, Messages: messages, Stream: false}).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("model server http %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return strings.TrimSpace(out.Message.Content), nil
}
