package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Speaker выводит звук через beep/speaker. Буфер устройства 100 мс,
// поэтому после отмены звучит не больше одного буфера.
type Speaker struct {
	rate    beep.SampleRate
	once    sync.Once
	initErr error
}

func NewSpeaker(sampleRate int) *Speaker {
	return &Speaker{rate: beep.SampleRate(sampleRate)}
}

func (s *Speaker) init() error {
	s.once.Do(func() {
		if err := speaker.Init(s.rate, s.rate.N(time.Second/10)); err != nil {
			s.initErr = fmt.Errorf("init speaker: %w", err)
		}
	})
	return s.initErr
}

// Play блокируется до конца звука или отмены ctx.
func (s *Speaker) Play(ctx context.Context, st beep.Streamer, format beep.Format) error {
	if err := s.init(); err != nil {
		return err
	}
	src := st
	if format.SampleRate != s.rate {
		src = beep.Resample(4, format.SampleRate, s.rate, st)
	}
	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(src, beep.Callback(func() { close(done) }))}
	speaker.Play(ctrl)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}
}

// Close останавливает вывод всего, что еще играет.
func (s *Speaker) Close() error {
	if s.initErr == nil {
		speaker.Clear()
	}
	return nil
}
