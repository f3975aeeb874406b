package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"rainbow-robot/internal/history"
)

const DefaultSystemPrompt = `You are HMND-01, a friendly humanoid robot assistant built by the Rainbow Robotics team.
Your answers are spoken aloud, so keep them short and conversational: at most three sentences,
no lists, no markdown, no emojis. If you do not know something, say so briefly.`

// ModelError — модель не ответила: ошибка провайдера, таймаут или пустой ответ.
type ModelError struct {
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("language model (%s): %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Assistant добавляет к запросу системный промпт и последние обмены из истории.
type Assistant struct {
	name         string
	client       Client
	systemPrompt string
	maxSentences int
}

func NewAssistant(name string, client Client, systemPrompt string, maxSentences int) *Assistant {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Assistant{name: name, client: client, systemPrompt: systemPrompt, maxSentences: maxSentences}
}

func (a *Assistant) Name() string { return a.name }

func (a *Assistant) Reply(ctx context.Context, prompt string, turns []history.Interaction) (string, error) {
	resp, err := a.client.Generate(ctx, BuildMessages(a.systemPrompt, turns, prompt))
	if err != nil {
		return "", &ModelError{Provider: a.name, Err: err}
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", &ModelError{Provider: a.name, Err: ErrEmptyReply}
	}
	if a.maxSentences > 0 {
		text = LimitSentences(text, a.maxSentences)
	}
	return text, nil
}

// BuildMessages: system, затем пары user/assistant из истории по порядку, затем новый вопрос.
func BuildMessages(systemPrompt string, turns []history.Interaction, prompt string) []Message {
	msgs := make([]Message, 0, 2+2*len(turns))
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	for _, t := range turns {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: t.UserText},
			Message{Role: RoleAssistant, Content: t.AssistantText},
		)
	}
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}

// LimitSentences обрезает текст после max-го предложения.
func LimitSentences(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	count := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' {
			continue
		}
		count++
		if count == max {
			return strings.TrimSpace(string(runes[:i+1]))
		}
	}
	return text
}

// LoadSystemPrompt читает промпт из файла; пустой путь или пустой файл дают промпт по умолчанию.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s, nil
	}
	return DefaultSystemPrompt, nil
}
