package audio

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	testRate  = 16000
	testFrame = 512
)

func sineFrame(freq, amp float64, offset int) []int16 {
	f := make([]int16, testFrame)
	for i := range f {
		f[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(offset+i)/testRate))
	}
	return f
}

func noiseFrame(rng *rand.Rand, amp float64) []int16 {
	f := make([]int16, testFrame)
	for i := range f {
		f[i] = int16((rng.Float64()*2 - 1) * amp)
	}
	return f
}

func TestRingKeepsLatestSamples(t *testing.T) {
	r := NewRing(4)
	r.Add([]int16{1, 2})
	if got := r.Read(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("partial read: %v", got)
	}
	r.Add([]int16{3, 4, 5, 6})
	got := r.Read()
	want := []int16{3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
	r.Reset()
	if len(r.Read()) != 0 {
		t.Fatalf("reset should empty the ring")
	}
}

func TestDetector(t *testing.T) {
	d := NewDetector(testRate, 300)
	rng := rand.New(rand.NewSource(1))

	if !d.IsSpeech(sineFrame(440, 8000, 0)) {
		rms, ratio := d.Analyze(sineFrame(440, 8000, 0))
		t.Fatalf("loud in-band tone should count as speech (rms %.1f ratio %.2f)", rms, ratio)
	}
	if d.IsSpeech(noiseFrame(rng, 20)) {
		t.Fatalf("quiet noise should not count as speech")
	}
	if d.IsSpeech(sineFrame(50, 8000, 0)) {
		rms, ratio := d.Analyze(sineFrame(50, 8000, 0))
		t.Fatalf("mains hum should not count as speech (rms %.1f ratio %.2f)", rms, ratio)
	}
	if rms, ratio := d.Analyze(nil); rms != 0 || ratio != 0 {
		t.Fatalf("empty frame should analyze to zero")
	}
}

type scriptedDetector struct{}

// речью считается любой фрейм с ненулевым первым сэмплом
func (scriptedDetector) IsSpeech(frame []int16) bool { return frame[0] != 0 }

func frameOf(v int16) []int16 {
	f := make([]int16, testFrame)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestSegmenterEmitsPhraseWithPreRoll(t *testing.T) {
	s := NewSegmenter(scriptedDetector{}, SegmenterConfig{
		SampleRate: testRate,
		QuietTime:  64 * time.Millisecond, // 2 фрейма
		PreRoll:    32 * time.Millisecond, // 1 фрейм
		MaxPhrase:  time.Second,
	})
	var out *goaudio.IntBuffer
	feed := func(f []int16) {
		if seg := s.Push(f); seg != nil {
			if out != nil {
				t.Fatalf("more than one segment")
			}
			out = seg
		}
	}
	feed(frameOf(0))
	feed(frameOf(0))
	feed(frameOf(5))
	feed(frameOf(5))
	feed(frameOf(0))
	if out != nil {
		t.Fatalf("segment closed too early")
	}
	feed(frameOf(0))
	if out == nil {
		t.Fatalf("segment not emitted after quiet time")
	}
	// предзапись + 2 речевых + 2 тихих
	if got := len(out.Data); got != 5*testFrame {
		t.Fatalf("unexpected segment length %d", got)
	}
	if out.Data[0] != 0 || out.Data[testFrame] != 5 {
		t.Fatalf("pre-roll not at the start of the segment")
	}
	if out.Format.SampleRate != testRate || out.SourceBitDepth != 16 {
		t.Fatalf("unexpected format %+v", out.Format)
	}
}

func TestSegmenterCapsPhraseLength(t *testing.T) {
	s := NewSegmenter(scriptedDetector{}, SegmenterConfig{
		SampleRate: testRate,
		QuietTime:  time.Second,
		MaxPhrase:  96 * time.Millisecond, // 3 фрейма
	})
	var n int
	for i := 0; i < 9; i++ {
		if seg := s.Push(frameOf(7)); seg != nil {
			n++
			if len(seg.Data) != 3*testFrame {
				t.Fatalf("unexpected capped length %d", len(seg.Data))
			}
		}
	}
	if n != 3 {
		t.Fatalf("expected 3 capped segments, got %d", n)
	}
}

func TestSegmenterDropsClicks(t *testing.T) {
	s := NewSegmenter(scriptedDetector{}, SegmenterConfig{
		SampleRate: testRate,
		QuietTime:  32 * time.Millisecond,
		MinSpeech:  100 * time.Millisecond,
	})
	s.Push(frameOf(9))
	if seg := s.Push(frameOf(0)); seg != nil {
		t.Fatalf("short click should be dropped")
	}
	if seg := s.Flush(); seg != nil {
		t.Fatalf("nothing should be pending")
	}
}

func TestEncodeWAV(t *testing.T) {
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           make([]int, testRate/2),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = int(1000 * math.Sin(float64(i)/10))
	}
	path := filepath.Join(t.TempDir(), "seg.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := EncodeWAV(f, buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_ = f.Close()

	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rf.Close()
	dec := wav.NewDecoder(rf)
	decoded, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != testRate || len(decoded.Data) != len(buf.Data) {
		t.Fatalf("round trip mismatch: rate %d, samples %d", dec.SampleRate, len(decoded.Data))
	}
	if Duration(buf) != 0.5 {
		t.Fatalf("unexpected duration %v", Duration(buf))
	}
}

func TestFloat32Normalizes(t *testing.T) {
	got := Float32(&goaudio.IntBuffer{Data: []int{-32768, 0, 16384}})
	if got[0] != -1 || got[1] != 0 || got[2] != 0.5 {
		t.Fatalf("unexpected normalization %v", got)
	}
}

type sliceSource struct{ frames [][]int16 }

func (s sliceSource) Frames(ctx context.Context) (<-chan []int16, error) {
	out := make(chan []int16)
	go func() {
		defer close(out)
		for _, f := range s.frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func TestCaptureFlushesPendingPhraseAtEnd(t *testing.T) {
	src := sliceSource{frames: [][]int16{frameOf(0), frameOf(3), frameOf(3)}}
	c := &Capture{Source: src, Segmenter: NewSegmenter(scriptedDetector{}, SegmenterConfig{SampleRate: testRate})}
	segs, err := c.Segments(context.Background())
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	var got []*goaudio.IntBuffer
	for seg := range segs {
		got = append(got, seg)
	}
	if len(got) != 1 || len(got[0].Data) != 2*testFrame {
		t.Fatalf("unexpected segments: %d", len(got))
	}
}
