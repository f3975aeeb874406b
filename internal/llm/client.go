package llm

import (
	"context"
	"errors"
)

// Роли сообщений чата; все три провайдера понимают одинаковые строки.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyReply — провайдер ответил, но без текста.
var ErrEmptyReply = errors.New("empty reply")

type Message struct {
	Role    string
	Content string
}

// Response — ответ модели и расход токенов; токены пишутся только в debug-лог.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func newResponse(model, content string, prompt, completion int) Response {
	return Response{
		Content:          content,
		Model:            model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Client — один запрос к модели без повторов.
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

// Options — параметры генерации, общие для всех провайдеров.
type Options struct {
	Temperature float32
	MaxTokens   int
}
