package llm

import (
	"fmt"
	"strings"

	"rainbow-robot/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
	ProviderOllama = "ollama"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenaiModel        string
	OpenRouterReferrer string
	OpenRouterTitle    string
	YandexOAuthToken   string
	YandexFolderID     string
	OllamaURL          string
	OllamaModel        string
	Options            Options
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenaiModel:        cfg.OpenAIModel,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
		OllamaURL:          cfg.OllamaURL,
		OllamaModel:        cfg.OllamaModel,
		Options:            Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
	}
}

func (f *Factory) CreateClient(provider string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		if f.OpenaiAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		cfg := NewOpenAIConfig(f.OpenaiAPIKey, f.OpenaiBaseURL, f.OpenRouterReferrer, f.OpenRouterTitle)
		return NewOpenAI(cfg, f.OpenaiModel, f.Options), nil
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	case ProviderOllama:
		return NewOllama(f.OllamaURL, f.OllamaModel, f.Options), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}

// ModelName — имя модели для логов.
func (f *Factory) ModelName(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return f.OpenaiModel
	case ProviderOllama:
		return f.OllamaModel
	default:
		return provider
	}
}
