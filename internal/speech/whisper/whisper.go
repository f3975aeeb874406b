// Package whisper — локальное распознавание речи через whisper.cpp.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	wcpp "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	goaudio "github.com/go-audio/audio"
	"github.com/rs/zerolog"

	"rainbow-robot/internal/audio"
	"rainbow-robot/internal/speech"
)

// ModelPath возвращает путь к ggml-файлу модели: base.en -> <dir>/ggml-base.en.bin.
func ModelPath(dir, id string) string {
	return filepath.Join(dir, "ggml-"+id+".bin")
}

type Recognizer struct {
	id    string
	model wcpp.Model
	mu    sync.Mutex
	log   zerolog.Logger
}

// New загружает модель. Биндинги считают только на CPU, поэтому device отличный
// от cpu лишь логируется.
func New(dir, id, device string, log zerolog.Logger) (*Recognizer, error) {
	path := ModelPath(dir, id)
	if device != "" && device != "cpu" {
		log.Warn().Str("device", device).Msg("whisper bindings run on cpu, ignoring device")
	}
	model, err := wcpp.New(path)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", path, err)
	}
	log.Info().Str("model", path).Msg("whisper model loaded")
	return &Recognizer{id: id, model: model, log: log}, nil
}

func (r *Recognizer) Name() string { return "whisper-" + r.id }

// Transcribe блокирует до конца расчета; контекст проверяется до и после,
// прервать сам расчет биндинги не позволяют.
func (r *Recognizer) Transcribe(ctx context.Context, segment *goaudio.IntBuffer) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	wctx, err := r.model.NewContext()
	if err != nil {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: err}
	}
	// англоязычные модели (*.en) язык не принимают
	if err := wctx.SetLanguage("en"); err != nil {
		r.log.Debug().Err(err).Msg("whisper: set language")
	}
	if err := wctx.Process(audio.Float32(segment), nil); err != nil {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: err}
	}

	var texts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &speech.RecognitionError{Provider: r.Name(), Err: err}
		}
		texts = append(texts, seg.Text)
	}
	if err := ctx.Err(); err != nil {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: err}
	}

	text := JoinSegments(texts)
	if text == "" {
		return "", &speech.RecognitionError{Provider: r.Name(), Err: speech.ErrNoSpeech}
	}
	return text, nil
}

func (r *Recognizer) Close() error {
	return r.model.Close()
}

// JoinSegments склеивает сегменты, отбрасывая служебные пометки вроде
// "[BLANK_AUDIO]" или "(music)" и повторы.
func JoinSegments(texts []string) string {
	seen := make(map[string]bool, len(texts))
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if t[0] == '(' || t[0] == '[' || t[len(t)-1] == ')' || t[len(t)-1] == ']' {
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}
