// Package listener связывает захват звука, распознавание и контроллер диалога.
package listener

import (
	"context"
	"errors"

	goaudio "github.com/go-audio/audio"
	"github.com/rs/zerolog"

	"rainbow-robot/internal/audio"
	"rainbow-robot/internal/conversation"
	"rainbow-robot/internal/speech"
)

// Source — микрофон в боевом режиме; в тестах заранее записанные фразы.
type Source interface {
	Segments(ctx context.Context) (<-chan *goaudio.IntBuffer, error)
}

// Sink принимает события; обычно это *conversation.Controller.
type Sink interface {
	Submit(ctx context.Context, ev conversation.Event) error
}

type Listener struct {
	source     Source
	recognizer speech.Recognizer
	sink       Sink
	name       string
	log        zerolog.Logger
}

func New(source Source, recognizer speech.Recognizer, sink Sink, log zerolog.Logger) *Listener {
	return &Listener{source: source, recognizer: recognizer, sink: sink, name: "microphone", log: log}
}

// Run распознает фразы по одной, пока не закончится источник, не отменят ctx
// или контроллер не остановится.
func (l *Listener) Run(ctx context.Context) error {
	segments, err := l.source.Segments(ctx)
	if err != nil {
		return err
	}
	l.log.Info().Str("recognizer", l.recognizer.Name()).Msg("listening")

	for seg := range segments {
		ev, ok := l.recognize(ctx, seg)
		if !ok {
			continue
		}
		if err := l.sink.Submit(ctx, ev); err != nil {
			if errors.Is(err, conversation.ErrStopped) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

func (l *Listener) recognize(ctx context.Context, seg *goaudio.IntBuffer) (conversation.Event, bool) {
	text, err := l.recognizer.Transcribe(ctx, seg)
	if err != nil {
		if errors.Is(err, speech.ErrNoSpeech) {
			l.log.Debug().Float64("seconds", audio.Duration(seg)).Msg("segment without speech")
			return conversation.Event{}, false
		}
		if ctx.Err() != nil {
			return conversation.Event{}, false
		}
		var re *speech.RecognitionError
		if !errors.As(err, &re) {
			err = &speech.RecognitionError{Provider: l.recognizer.Name(), Err: err}
		}
		return conversation.RecognitionFailed(l.name, err), true
	}
	l.log.Debug().
		Str("text", text).
		Float64("seconds", audio.Duration(seg)).
		Msg("segment recognized")
	return conversation.Transcript(l.name, text), true
}
