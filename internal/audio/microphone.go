package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// Microphone читает фреймы с устройства ввода по умолчанию через PortAudio.
// Устройство принадлежит только ему.
type Microphone struct {
	SampleRate int
	FrameSize  int
	Log        zerolog.Logger
}

// Frames открывает поток и отдает копии фреймов до отмены ctx.
// Если потребитель не успевает, фреймы отбрасываются.
func (m *Microphone) Frames(ctx context.Context) (<-chan []int16, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	buf := make([]int16, m.FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.SampleRate), len(buf), buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	m.Log.Info().Int("sample_rate", m.SampleRate).Int("frame_size", m.FrameSize).Msg("microphone opened")

	out := make(chan []int16, 64)
	go func() {
		defer func() {
			_ = stream.Stop()
			_ = stream.Close()
			_ = portaudio.Terminate()
			close(out)
			m.Log.Info().Msg("microphone closed")
		}()
		dropped := 0
		for ctx.Err() == nil {
			if err := stream.Read(); err != nil {
				if errors.Is(err, portaudio.InputOverflowed) {
					continue
				}
				m.Log.Error().Err(err).Msg("microphone read failed")
				return
			}
			frame := make([]int16, len(buf))
			copy(frame, buf)
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			default:
				dropped++
				if dropped%100 == 1 {
					m.Log.Warn().Int("dropped", dropped).Msg("audio consumer is slow, dropping frames")
				}
			}
		}
	}()
	return out, nil
}
