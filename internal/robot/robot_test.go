package robot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rainbow-robot/internal/config"
	"rainbow-robot/internal/conversation"
	"rainbow-robot/internal/speech"
	"rainbow-robot/internal/storage"
)

func testConfig(backend config.Backend) *config.Config {
	return &config.Config{
		Backend:          backend,
		WakePhrases:      []string{"hey robot"},
		StopPhrases:      []string{"rainbow", "stop"},
		LocalStopPhrases: []string{"shut up"},
		QuitPhrases:      []string{"goodbye"},
		ListenTimeout:    20 * time.Second,
		MaxSilence:       3,
		FarewellTimeout:  5 * time.Second,
		HistoryContext:   10,
		RecentCount:      3,
		GreetingEnabled:  true,
		Voice:            "en_GB-alba-low",
		STTModel:         "base.en",
		OllamaModel:      "llama3",
		Device:           "cpu",
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := testConfig(config.BackendLocal)
	ApplyOverrides(cfg, Overrides{STTModel: "tiny.en", LLMModel: "mistral"})
	if cfg.STTModel != "tiny.en" || cfg.OllamaModel != "mistral" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Voice != "en_GB-alba-low" || cfg.Device != "cpu" {
		t.Fatalf("empty overrides must keep config values: %+v", cfg)
	}
}

func TestVocabularyUsesBackendStopPhrases(t *testing.T) {
	local := Vocabulary(testConfig(config.BackendLocal))
	if got := local.Classify("shut up please", conversation.StateSpeaking); got.Kind != conversation.KindStop {
		t.Fatalf("local backend should stop on 'shut up', got %v", got)
	}
	cloudVocab := Vocabulary(testConfig(config.BackendCloud))
	if got := cloudVocab.Classify("shut up please", conversation.StateSpeaking); got.Kind == conversation.KindStop {
		t.Fatalf("cloud backend should not stop on 'shut up'")
	}
	if got := cloudVocab.Classify("what was our first interaction", conversation.StateListening); got.Kind != conversation.KindHistoryQuery {
		t.Fatalf("history phrases missing, got %v", got)
	}
}

func TestControllerConfig(t *testing.T) {
	cc := ControllerConfig(testConfig(config.BackendCloud))
	if cc.ListenTimeout != 20*time.Second || cc.MaxSilence != 3 || !cc.Greeting || cc.RecentCount != 3 || cc.FarewellTimeout != 5*time.Second {
		t.Fatalf("unexpected controller config %+v", cc)
	}
}

type instantSynth struct {
	err    error
	hold   bool
	spoken []string
}

func (s *instantSynth) Name() string { return "instant" }

func (s *instantSynth) Speak(ctx context.Context, text string) (*speech.Handle, error) {
	s.spoken = append(s.spoken, text)
	h, hctx := speech.NewHandle(ctx, s.Name(), text)
	go func() {
		if s.hold {
			<-hctx.Done()
			h.Finish(hctx.Err())
			return
		}
		h.Finish(s.err)
	}()
	return h, nil
}

func (s *instantSynth) Close() error { return nil }

func TestSpeakOnce(t *testing.T) {
	s := &instantSynth{}
	if err := SpeakOnce(context.Background(), s, "Hello there"); err != nil {
		t.Fatalf("SpeakOnce: %v", err)
	}
	if len(s.spoken) != 1 || s.spoken[0] != "Hello there" {
		t.Fatalf("unexpected spoken %v", s.spoken)
	}

	s.err = errors.New("speaker unplugged")
	var se *speech.SynthesisError
	if err := SpeakOnce(context.Background(), s, "Hello"); !errors.As(err, &se) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}
}

func TestSpeakOnceCancelled(t *testing.T) {
	s := &instantSynth{hold: true}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := SpeakOnce(ctx, s, "A very long story"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestDigestFunc(t *testing.T) {
	if _, err := DigestFunc(nil, time.Now)(context.Background()); err == nil {
		t.Fatalf("expected error without journal")
	}

	rec, err := storage.NewFileRecorder(filepath.Join(t.TempDir(), "journal.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)
	for _, ev := range []storage.Event{
		{Timestamp: now.Add(-2 * time.Hour), SessionID: "a", Kind: storage.KindWake},
		{Timestamp: now.Add(-time.Hour), SessionID: "a", Kind: storage.KindInteraction, Provider: "openai-gpt-4o-mini"},
		{Timestamp: now.AddDate(0, 0, -1), SessionID: "b", Kind: storage.KindInteraction},
	} {
		if err := rec.AppendEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := DigestFunc(rec, func() time.Time { return now })(context.Background())
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !strings.Contains(summary, "2024-03-01") || !strings.Contains(summary, "Interactions: 1") || !strings.Contains(summary, "Sessions: 1") {
		t.Fatalf("unexpected digest:\n%s", summary)
	}
}
