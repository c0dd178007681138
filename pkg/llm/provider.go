// Package llm defines the text-generation provider used to write post bodies.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithBaseURL("https://api.deepseek.com"),
//	    openai.WithModel("deepseek-reasoner"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []llm.Message{
//	    llm.SystemMessage("You write short posts."),
//	    llm.UserMessage("Title: Summer sunscreen"),
//	})
package llm

import (
	"context"
	"regexp"
	"strings"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role
	Content string
}

// SystemMessage returns a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Provider defines the interface for LLM integrations.
type Provider interface {
	// Complete sends messages and returns the assistant's full reply.
	Complete(ctx context.Context, messages []Message) (*Message, error)

	// GetModel returns the model name being used.
	GetModel() string
}

var reasoningBlock = regexp.MustCompile(`(?s)<(think|thinking)>.*?</(think|thinking)>`)

// StripReasoning removes <think> and <thinking> blocks some reasoning models
// put in front of their answer.
func StripReasoning(text string) string {
	return strings.TrimSpace(reasoningBlock.ReplaceAllString(text, ""))
}
