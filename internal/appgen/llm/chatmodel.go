package llm

import (
	"context"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel adapts a Gateway to eino's BaseChatModel so it can sit in a
// compose graph as a ChatModel node. System messages are joined into the
// system prompt and the last user message is the request.
type ChatModel struct {
	gateway Gateway
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

func NewChatModel(g Gateway) *ChatModel {
	return &ChatModel{gateway: g}
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	var (
		system []string
		user   string
	)
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.User:
			user = msg.Content
		}
	}

	out, err := m.gateway.GetResponse(ctx, user, strings.Join(system, "\n\n"))
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(out, nil), nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// GetType names the component in callback run info.
func (m *ChatModel) GetType() string { return "Gateway" }
