package audio

import (
	"time"

	goaudio "github.com/go-audio/audio"
)

// VoiceDetector классифицирует отдельный фрейм.
type VoiceDetector interface {
	IsSpeech(frame []int16) bool
}

type SegmenterConfig struct {
	SampleRate int
	QuietTime  time.Duration
	PreRoll    time.Duration
	MaxPhrase  time.Duration
	MinSpeech  time.Duration
}

// Segmenter режет поток фреймов на фразы: фраза начинается с речевого фрейма
// (вместе с предзаписью) и заканчивается после QuietTime тишины или MaxPhrase.
// Время считается по количеству сэмплов, а не по часам.
type Segmenter struct {
	det        VoiceDetector
	cfg        SegmenterConfig
	ring       *Ring
	collecting bool
	samples    []int
	quiet      int
	voiced     int
}

func NewSegmenter(det VoiceDetector, cfg SegmenterConfig) *Segmenter {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.QuietTime <= 0 {
		cfg.QuietTime = 800 * time.Millisecond
	}
	if cfg.MaxPhrase <= 0 {
		cfg.MaxPhrase = 15 * time.Second
	}
	s := &Segmenter{det: det, cfg: cfg}
	s.ring = NewRing(s.samplesFor(cfg.PreRoll))
	return s
}

func (s *Segmenter) samplesFor(d time.Duration) int {
	return int(int64(d) * int64(s.cfg.SampleRate) / int64(time.Second))
}

// Push добавляет фрейм и возвращает законченную фразу, если она есть.
func (s *Segmenter) Push(frame []int16) *goaudio.IntBuffer {
	speech := s.det.IsSpeech(frame)
	if !s.collecting {
		if !speech {
			s.ring.Add(frame)
			return nil
		}
		s.collecting = true
		s.samples = appendSamples(s.samples[:0], s.ring.Read())
		s.ring.Reset()
	}
	s.samples = appendSamples(s.samples, frame)
	if speech {
		s.voiced += len(frame)
		s.quiet = 0
	} else {
		s.quiet += len(frame)
	}
	if s.quiet >= s.samplesFor(s.cfg.QuietTime) || len(s.samples) >= s.samplesFor(s.cfg.MaxPhrase) {
		return s.emit()
	}
	return nil
}

// Flush отдает недописанную фразу, например при остановке захвата.
func (s *Segmenter) Flush() *goaudio.IntBuffer {
	if !s.collecting {
		return nil
	}
	return s.emit()
}

func (s *Segmenter) emit() *goaudio.IntBuffer {
	defer s.reset()
	if s.voiced < s.samplesFor(s.cfg.MinSpeech) {
		return nil
	}
	data := make([]int, len(s.samples))
	copy(data, s.samples)
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: s.cfg.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func (s *Segmenter) reset() {
	s.collecting = false
	s.samples = s.samples[:0]
	s.quiet = 0
	s.voiced = 0
}

func appendSamples(dst []int, src []int16) []int {
	for _, v := range src {
		dst = append(dst, int(v))
	}
	return dst
}
