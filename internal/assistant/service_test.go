package assistant

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	anthropic "github.com/liushuangls/go-anthropic/v2"
)

type stubCompletion struct {
	gotRequest anthropic.MessagesRequest
	reply      string
	err        error
}

func (s *stubCompletion) CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error) {
	s.gotRequest = request
	if s.err != nil {
		return anthropic.MessagesResponse{}, s.err
	}
	return anthropic.MessagesResponse{
		Content: []anthropic.MessageContent{
			anthropic.NewTextMessageContent(s.reply),
		},
	}, nil
}

func TestCompleteReturnsReply(t *testing.T) {
	stub := &stubCompletion{reply: "Keep three days of water per person."}
	svc := newServiceWithClient(stub, "claude-3-5-haiku-latest")

	resp, err := svc.Complete(context.Background(), ChatRequest{
		Messages: []ChatMessage{
			{Role: "user", Content: "How much water should we stock?"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Reply != "Keep three days of water per person." {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if stub.gotRequest.System == "" {
		t.Fatalf("expected system prompt to be set")
	}
	if len(stub.gotRequest.Messages) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(stub.gotRequest.Messages))
	}
}

func TestCompletePreservesConversationOrder(t *testing.T) {
	stub := &stubCompletion{reply: "Move to higher ground."}
	svc := newServiceWithClient(stub, "claude-3-5-haiku-latest")

	_, err := svc.Complete(context.Background(), ChatRequest{
		Messages: []ChatMessage{
			{Role: "user", Content: "The river is rising."},
			{Role: "assistant", Content: "Is everyone accounted for?"},
			{Role: "user", Content: "Yes, all six of us."},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(stub.gotRequest.Messages) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(stub.gotRequest.Messages))
	}
	if stub.gotRequest.Messages[1].Role != anthropic.RoleAssistant {
		t.Fatalf("expected assistant role on second turn")
	}
}

func TestCompleteRejectsBadConversations(t *testing.T) {
	svc := newServiceWithClient(&stubCompletion{reply: "ok"}, "claude-3-5-haiku-latest")

	cases := []struct {
		name     string
		messages []ChatMessage
	}{
		{"empty", nil},
		{"blank content", []ChatMessage{{Role: "user", Content: "   "}}},
		{"bad role", []ChatMessage{{Role: "system", Content: "hi"}}},
		{"ends with assistant", []ChatMessage{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Complete(context.Background(), ChatRequest{Messages: tc.messages})
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected VALIDATION, got %v", err)
			}
		})
	}
}

func TestCompleteWrapsUpstreamFailure(t *testing.T) {
	stub := &stubCompletion{err: errors.New("rate limited")}
	svc := newServiceWithClient(stub, "claude-3-5-haiku-latest")

	_, err := svc.Complete(context.Background(), ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY, got %v", err)
	}
}
