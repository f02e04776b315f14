package tlab

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const chatPath = "/v1/chat/completions"

// Chat streams a chat completion. onPartial sees the output as it grows.
// The connect step uses the host fallback; once the stream has started
// nothing is retried.
func (c *Client) Chat(ctx context.Context, req *ChatRequest, onPartial PartialFunc) (*ChatResult, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("tlab: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("tlab: invalid request: %w", err)
	}

	messages := req.AllMessages()

	c.logger.Debug("chat stream request starting",
		zap.String("model", req.Model),
		zap.Int("message_count", len(messages)),
	)

	resp, err := c.send(ctx, &Request{
		Method: http.MethodPost,
		Path:   chatPath,
		Body: providerChatRequest{
			Model:            req.Model,
			Messages:         messages,
			Stream:           true,
			N:                1,
			Temperature:      req.Temperature,
			TopP:             req.TopP,
			TopK:             req.TopK,
			MaxTokens:        req.MaxTokens,
			PresencePenalty:  req.PresencePenalty,
			FrequencyPenalty: req.FrequencyPenalty,
			Stop:             req.Stop,
			User:             req.User,
		},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	completion, err := c.decoder.Decode(resp.Body, onPartial)
	if err != nil {
		return nil, err
	}

	all := make([]ChatMessage, 0, len(messages)+1)
	all = append(all, messages...)
	all = append(all, ChatMessage{Role: RoleAssistant, Content: completion.Text})

	c.logger.Info("chat stream completed",
		zap.String("model", req.Model),
		zap.Int("deltas", completion.Deltas),
		zap.Int("frame_errors", len(completion.FrameErrors)),
		zap.Duration("duration", time.Since(start)),
	)

	return &ChatResult{
		Output:       completion.Text,
		MessagesSent: messages,
		AllMessages:  all,
		Final:        completion.Final,
	}, nil
}
