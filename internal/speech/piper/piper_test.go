package piper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faiface/beep"
	goaudio "github.com/go-audio/audio"

	"rainbow-robot/internal/audio"
	"rainbow-robot/internal/speech"
)

type countingSink struct {
	samples int
	rate    beep.SampleRate
}

func (s *countingSink) Play(ctx context.Context, st beep.Streamer, f beep.Format) error {
	s.rate = f.SampleRate
	buf := make([][2]float64, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, ok := st.Stream(buf)
		s.samples += n
		if !ok {
			return nil
		}
	}
}

func wavBytes(t *testing.T, frames int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 22050},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = (i % 100) * 100
	}
	if err := audio.EncodeWAV(f, buf); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func wait(t *testing.T, h *speech.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("speech did not finish")
	}
}

func TestSpeakPlaysServerAudio(t *testing.T) {
	data := wavBytes(t, 2205)
	var gotText, gotVoice string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotText = r.FormValue("text")
		gotVoice = r.FormValue("voice")
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	sink := &countingSink{}
	s := New(srv.URL, "en_GB-alba-low", sink)
	h, err := s.Speak(context.Background(), "Hello, I am HMND-01.")
	if err != nil {
		t.Fatal(err)
	}
	wait(t, h)
	if h.Err() != nil {
		t.Fatalf("unexpected error: %v", h.Err())
	}
	if gotText != "Hello, I am HMND-01." || gotVoice != "en_GB-alba-low" {
		t.Fatalf("unexpected form text=%q voice=%q", gotText, gotVoice)
	}
	if sink.samples != 2205 || sink.rate != 22050 {
		t.Fatalf("played %d samples at %d", sink.samples, sink.rate)
	}
}

func TestSpeakServerErrorIsSynthesisError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(srv.URL, "", &countingSink{})
	h, _ := s.Speak(context.Background(), "Hi.")
	wait(t, h)
	var se *speech.SynthesisError
	if !errors.As(h.Err(), &se) || se.Provider != "piper" {
		t.Fatalf("expected piper SynthesisError, got %v", h.Err())
	}
}

func TestCancelDuringRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	s := New(srv.URL, "", &countingSink{})
	h, _ := s.Speak(context.Background(), "Something long.")
	time.Sleep(20 * time.Millisecond)
	h.Cancel()
	wait(t, h)
	if !h.Canceled() || h.Err() != nil {
		t.Fatalf("canceled=%v err=%v", h.Canceled(), h.Err())
	}
}
