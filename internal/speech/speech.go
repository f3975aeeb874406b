// Package speech описывает контракты распознавания и синтеза речи.
// Реализации лежат в подпакетах cloud, whisper и piper.
package speech

import (
	"context"
	"errors"
	"fmt"

	"github.com/faiface/beep"
	"github.com/go-audio/audio"
)

// ErrNoSpeech — распознаватель вернул пустой текст.
var ErrNoSpeech = errors.New("no speech recognized")

// Recognizer превращает записанный фрагмент в текст.
type Recognizer interface {
	Name() string
	Transcribe(ctx context.Context, segment *audio.IntBuffer) (string, error)
}

// Synthesizer озвучивает текст. Speak не блокируется: проигрывание идет в фоне,
// а его ход отслеживается через Handle.
type Synthesizer interface {
	Name() string
	Speak(ctx context.Context, text string) (*Handle, error)
	Close() error
}

// Sink проигрывает декодированный звук и прекращает вывод при отмене ctx.
type Sink interface {
	Play(ctx context.Context, s beep.Streamer, format beep.Format) error
}

type RecognitionError struct {
	Provider string
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition (%s): %v", e.Provider, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis (%s): %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
