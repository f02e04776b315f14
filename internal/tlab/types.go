package tlab

import (
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion call. Zero-valued sampling fields are
// left out and the server default applies.
type ChatRequest struct {
	Model        string        `json:"model"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Messages     []ChatMessage `json:"messages"`

	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Stop             string   `json:"stop,omitempty"`
	User             string   `json:"user,omitempty"`
}

func (r *ChatRequest) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}

	for i, m := range r.Messages {
		if m.Role != RoleSystem && m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("invalid role %q in messages[%d]", m.Role, i)
		}
	}

	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return errors.New("top_p must be between 0 and 1")
	}
	if r.MaxTokens < 0 {
		return errors.New("max_tokens must not be negative")
	}

	return nil
}

// AllMessages returns the messages to send, system prompt first.
func (r *ChatRequest) AllMessages() []ChatMessage {
	if r.SystemPrompt == "" {
		return append([]ChatMessage(nil), r.Messages...)
	}
	out := make([]ChatMessage, 0, len(r.Messages)+1)
	out = append(out, ChatMessage{Role: RoleSystem, Content: r.SystemPrompt})
	return append(out, r.Messages...)
}

// ChatResult is a finished chat completion.
type ChatResult struct {
	Output       string         `json:"output"`
	MessagesSent []ChatMessage  `json:"messages_sent"`
	AllMessages  []ChatMessage  `json:"all_messages"`
	Final        *FinalResponse `json:"final,omitempty"`
}

// Request shape we send to the chat endpoint (OpenAI-style).
type providerChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Stream           bool          `json:"stream"`
	N                int           `json:"n"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	TopK             *int          `json:"top_k,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	Stop             string        `json:"stop,omitempty"`
	User             string        `json:"user,omitempty"`
}

// AddDatasetResult names the files the server stored for a new dataset.
type AddDatasetResult struct {
	DatasetID    string `json:"dataset_id"`
	TrainingFile string `json:"training_file"`
	EvalFile     string `json:"eval_file"`
}

type uploadResponse struct {
	Filename string `json:"filename"`
}
