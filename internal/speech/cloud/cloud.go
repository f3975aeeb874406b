// Package cloud — облачные распознавание и синтез речи через OpenAI API.
package cloud

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/faiface/beep/mp3"
	goaudio "github.com/go-audio/audio"
	"github.com/sashabaranov/go-openai"

	"rainbow-robot/internal/audio"
	"rainbow-robot/internal/speech"
)

type Recognizer struct {
	client   *openai.Client
	model    string
	language string
	tmpDir   string
}

func NewRecognizer(cfg openai.ClientConfig, model string) *Recognizer {
	return &Recognizer{client: openai.NewClientWithConfig(cfg), model: model, language: "en"}
}

func (r *Recognizer) Name() string { return "openai-" + r.model }

// Transcribe отправляет фрагмент в виде WAV-файла.
func (r *Recognizer) Transcribe(ctx context.Context, segment *goaudio.IntBuffer) (string, error) {
	f, err := os.CreateTemp(r.tmpDir, "segment-*.wav")
	if err != nil {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: fmt.Errorf("create temp wav: %w", err)}
	}
	defer os.Remove(f.Name())
	if err := audio.EncodeWAV(f, segment); err != nil {
		_ = f.Close()
		return "", &speech.RecognitionError{Provider: r.Name(), Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: err}
	}

	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: f.Name(),
		Language: r.language,
	})
	if err != nil {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: fmt.Errorf("create transcription: %w", err)}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: speech.ErrNoSpeech}
	}
	return text, nil
}

// Synthesizer получает mp3 от OpenAI и проигрывает его через Sink.
type Synthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	sink   speech.Sink
}

func NewSynthesizer(cfg openai.ClientConfig, model, voice string, sink speech.Sink) *Synthesizer {
	return &Synthesizer{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
		sink:   sink,
	}
}

func (s *Synthesizer) Name() string { return "openai-" + string(s.model) }

func (s *Synthesizer) Speak(ctx context.Context, text string) (*speech.Handle, error) {
	h, hctx := speech.NewHandle(ctx, s.Name(), text)
	go func() { h.Finish(s.play(hctx, text)) }()
	return h, nil
}

func (s *Synthesizer) play(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return fmt.Errorf("create speech: %w", err)
	}
	streamer, format, err := mp3.Decode(resp)
	if err != nil {
		_ = resp.Close()
		return fmt.Errorf("decode mp3: %w", err)
	}
	defer streamer.Close()
	return s.sink.Play(ctx, streamer, format)
}

func (s *Synthesizer) Close() error { return nil }
