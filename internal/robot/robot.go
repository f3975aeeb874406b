// Package robot собирает компоненты робота по конфигурации.
package robot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rainbow-robot/internal/analytics"
	"rainbow-robot/internal/config"
	"rainbow-robot/internal/conversation"
	"rainbow-robot/internal/speech"
	"rainbow-robot/internal/storage"
)

// Overrides — флаги командной строки локального режима; пустые значения не меняют конфигурацию.
type Overrides struct {
	Voice    string
	STTModel string
	LLMModel string
	Device   string
}

func ApplyOverrides(cfg *config.Config, o Overrides) {
	if o.Voice != "" {
		cfg.Voice = o.Voice
	}
	if o.STTModel != "" {
		cfg.STTModel = o.STTModel
	}
	if o.LLMModel != "" {
		cfg.OllamaModel = o.LLMModel
	}
	if o.Device != "" {
		cfg.Device = o.Device
	}
}

// Vocabulary собирает словарь команд из настроенных фраз.
func Vocabulary(cfg *config.Config) conversation.Vocabulary {
	return conversation.Vocabulary{
		Wake:    cfg.WakePhrases,
		Stop:    cfg.StopPhraseSet(),
		Quit:    cfg.QuitPhrases,
		History: conversation.DefaultHistoryPhrases(),
	}
}

func ControllerConfig(cfg *config.Config) conversation.Config {
	return conversation.Config{
		Vocabulary:      Vocabulary(cfg),
		ListenTimeout:   cfg.ListenTimeout,
		MaxSilence:      cfg.MaxSilence,
		ModelTimeout:    cfg.ModelTimeout,
		CancelTimeout:   cfg.CancelTimeout,
		FarewellTimeout: cfg.FarewellTimeout,
		HistoryContext:  cfg.HistoryContext,
		RecentCount:     cfg.RecentCount,
		Greeting:        cfg.GreetingEnabled,
	}
}

// SpeakOnce озвучивает текст и ждет конца проигрывания.
func SpeakOnce(ctx context.Context, synth speech.Synthesizer, text string) error {
	h, err := synth.Speak(ctx, text)
	if err != nil {
		return err
	}
	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		h.Cancel()
		<-h.Done()
		return ctx.Err()
	}
}

// DigestFunc строит сводку за текущие сутки по журналу.
func DigestFunc(rec storage.Recorder, now func() time.Time) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if rec == nil {
			return "", errors.New("journal is disabled")
		}
		events, err := rec.LoadEvents()
		if err != nil {
			return "", fmt.Errorf("load journal: %w", err)
		}
		return analytics.AnalyzeDay(events, now()).GenerateReportSummary(), nil
	}
}
