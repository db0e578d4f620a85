package assistant

import (
	"context"
	"strings"

	"github.com/whistl-app/whistl-backend/pkg/config"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const (
	maxTurns         = 20
	maxContentLength = 4000
	maxReplyTokens   = 1024

	systemPrompt = "You are a calm, practical assistant inside an emergency " +
		"coordination app. Members ask about preparing for and responding to " +
		"local emergencies. Give short, concrete, safety-first answers and " +
		"recommend contacting emergency services for anything life threatening."
)

// ChatMessage is one turn of the helper conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest carries the conversation so far, newest last.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Reply string `json:"reply"`
	Model string `json:"model"`
}

// Service proxies chat completions for the in-app helper.
type Service interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type completionClient interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

type service struct {
	client completionClient
	model  anthropic.Model
}

// NewService builds the assistant proxy from config. Fails when no API key
// is configured so the route can be left unmounted.
func NewService(cfg config.AnthropicConfig) (Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "anthropic api key required")
	}
	return &service{
		client: anthropic.NewClient(cfg.APIKey),
		model:  anthropic.Model(cfg.Model),
	}, nil
}

func newServiceWithClient(client completionClient, model string) Service {
	return &service{client: client, model: anthropic.Model(model)}
}

func (s *service) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	turns, err := buildTurns(req.Messages)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     s.model,
		System:    systemPrompt,
		Messages:  turns,
		MaxTokens: maxReplyTokens,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assistant completion failed")
	}

	reply := strings.TrimSpace(resp.GetFirstContentText())
	if reply == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "assistant returned an empty reply")
	}

	return &ChatResponse{
		Reply: reply,
		Model: string(s.model),
	}, nil
}

func buildTurns(messages []ChatMessage) ([]anthropic.Message, error) {
	if len(messages) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one message is required")
	}
	if len(messages) > maxTurns {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "conversation is too long")
	}

	turns := make([]anthropic.Message, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "message content is required")
		}
		if len(content) > maxContentLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "message content is too long")
		}

		switch anthropic.ChatRole(msg.Role) {
		case anthropic.RoleUser:
			turns = append(turns, anthropic.NewUserTextMessage(content))
		case anthropic.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantTextMessage(content))
		default:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "message role must be user or assistant")
		}
	}

	if turns[len(turns)-1].Role != anthropic.RoleUser {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "conversation must end with a user message")
	}
	return turns, nil
}
