package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/notepost/pkg/llm"
	"github.com/entrhq/notepost/pkg/logging"
)

// DefaultMaxChars is the body budget in characters.
const DefaultMaxChars = 700

const (
	systemPrompt = "你是一个小红书内容创作者，请根据给定标题生成一条简洁的小红书内容，不超过700个字符。内容要完整可读"
	userPrompt   = "标题：%s"
	fallbackBody = "这是关于%s的内容，简洁明了，适合快速阅读。"
)

// BodyGenerator writes a post body for a title. It always returns usable text.
type BodyGenerator interface {
	Generate(ctx context.Context, title string) string
}

// FallbackBody is the body used when generation is unavailable.
func FallbackBody(title string) string {
	return fmt.Sprintf(fallbackBody, title)
}

// LLMGenerator asks a chat provider for a body and caps it at MaxChars.
type LLMGenerator struct {
	provider llm.Provider
	maxChars int
	logger   *logging.Logger
}

// NewLLMGenerator creates a generator. A nil provider always yields the
// fallback body.
func NewLLMGenerator(provider llm.Provider, maxChars int, logger *logging.Logger) *LLMGenerator {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &LLMGenerator{provider: provider, maxChars: maxChars, logger: logger}
}

// Generate returns the generated body, or the fallback on any failure.
func (g *LLMGenerator) Generate(ctx context.Context, title string) string {
	if g.provider == nil {
		return FallbackBody(title)
	}

	reply, err := g.provider.Complete(ctx, []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(fmt.Sprintf(userPrompt, title)),
	})
	if err != nil {
		g.logger.Warnf("Body generation for %q failed: %v", title, err)
		return FallbackBody(title)
	}

	body := strings.TrimSpace(reply.Content)
	if body == "" {
		g.logger.Warnf("Model %s returned an empty body for %q", g.provider.GetModel(), title)
		return FallbackBody(title)
	}
	return Truncate(body, g.maxChars)
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
