// Package piper — локальный синтез речи через HTTP-сервер Piper.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/faiface/beep/wav"

	"rainbow-robot/internal/speech"
)

const DefaultEndpoint = "http://localhost:7071/tts"

type Synthesizer struct {
	endpoint string
	voice    string
	client   *http.Client
	sink     speech.Sink
}

func New(endpoint, voice string, sink speech.Sink) *Synthesizer {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	// первый запрос может ждать запуска piper
	return &Synthesizer{
		endpoint: endpoint,
		voice:    voice,
		client:   &http.Client{Timeout: 120 * time.Second},
		sink:     sink,
	}
}

func (s *Synthesizer) Name() string {
	if s.voice == "" {
		return "piper"
	}
	return "piper-" + s.voice
}

func (s *Synthesizer) Speak(ctx context.Context, text string) (*speech.Handle, error) {
	h, hctx := speech.NewHandle(ctx, s.Name(), text)
	go func() { h.Finish(s.play(hctx, text)) }()
	return h, nil
}

func (s *Synthesizer) play(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	body, err := s.synthesize(ctx, text)
	if err != nil {
		return err
	}
	streamer, format, err := wav.Decode(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()
	return s.sink.Play(ctx, streamer, format)
}

// synthesize отправляет форму с полем text и возвращает WAV целиком.
func (s *Synthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	form := url.Values{}
	form.Set("text", text)
	if s.voice != "" {
		form.Set("voice", s.voice)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build piper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to piper: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read piper response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("piper status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (s *Synthesizer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
