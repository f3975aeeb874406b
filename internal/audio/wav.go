package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV пишет 16-битный PCM WAV.
func EncodeWAV(w io.WriteSeeker, buf *goaudio.IntBuffer) error {
	if buf == nil || buf.Format == nil {
		return fmt.Errorf("empty audio buffer")
	}
	enc := wav.NewEncoder(w, buf.Format.SampleRate, 16, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// Float32 переводит 16-битные сэмплы в диапазон [-1, 1].
func Float32(buf *goaudio.IntBuffer) []float32 {
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / 32768
	}
	return out
}

// Duration — длительность фрагмента.
func Duration(buf *goaudio.IntBuffer) float64 {
	if buf == nil || buf.Format == nil || buf.Format.SampleRate == 0 {
		return 0
	}
	return float64(buf.NumFrames()) / float64(buf.Format.SampleRate)
}
