package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"rainbow-robot/internal/audio"
	"rainbow-robot/internal/auth"
	"rainbow-robot/internal/config"
	"rainbow-robot/internal/conversation"
	"rainbow-robot/internal/history"
	"rainbow-robot/internal/listener"
	"rainbow-robot/internal/llm"
	"rainbow-robot/internal/scheduler"
	"rainbow-robot/internal/speech"
	"rainbow-robot/internal/speech/cloud"
	"rainbow-robot/internal/speech/piper"
	"rainbow-robot/internal/speech/whisper"
	"rainbow-robot/internal/storage"
	"rainbow-robot/internal/telegram"
)

const (
	healthTimeout   = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// healthChecker — клиенты модели, умеющие проверить доступность сервера.
type healthChecker interface {
	Health(ctx context.Context) error
}

// Robot владеет устройствами и провайдерами одного процесса.
type Robot struct {
	cfg     *config.Config
	log     zerolog.Logger
	speaker *audio.Speaker
	synth   speech.Synthesizer
	journal storage.Recorder
	closers []func() error
}

// New готовит синтез речи; этого достаточно для режима --message.
func New(cfg *config.Config, log zerolog.Logger) (*Robot, error) {
	r := &Robot{cfg: cfg, log: log, speaker: audio.NewSpeaker(cfg.PlaybackRate)}
	r.closers = append(r.closers, r.speaker.Close)

	switch cfg.Backend {
	case config.BackendLocal:
		r.synth = piper.New(cfg.PiperURL, cfg.Voice, r.speaker)
	default:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the cloud backend")
		}
		r.synth = cloud.NewSynthesizer(llm.NewOpenAIConfig(cfg.OpenAIAPIKey, "", "", ""), cfg.OpenAITTSModel, cfg.OpenAIVoice, r.speaker)
	}
	r.closers = append(r.closers, r.synth.Close)
	log.Info().Str("backend", string(cfg.Backend)).Str("synthesizer", r.synth.Name()).Msg("speech output ready")
	return r, nil
}

// Say озвучивает одно сообщение.
func (r *Robot) Say(ctx context.Context, text string) error {
	r.log.Info().Str("text", text).Msg("speaking message")
	return SpeakOnce(ctx, r.synth, text)
}

func (r *Robot) newRecognizer() (speech.Recognizer, error) {
	if r.cfg.Backend == config.BackendLocal {
		rec, err := whisper.New(r.cfg.WhisperModelDir, r.cfg.STTModel, r.cfg.Device, r.log)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, rec.Close)
		return rec, nil
	}
	return cloud.NewRecognizer(llm.NewOpenAIConfig(r.cfg.OpenAIAPIKey, "", "", ""), r.cfg.OpenAISTTModel), nil
}

func (r *Robot) newAssistant(ctx context.Context) (*llm.Assistant, error) {
	provider := r.cfg.ModelProvider()
	factory := llm.NewFactory(r.cfg)
	client, err := factory.CreateClient(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	if hc, ok := client.(healthChecker); ok {
		hctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := hc.Health(hctx); err != nil {
			return nil, fmt.Errorf("%s health check: %w", provider, err)
		}
	}
	prompt, err := llm.LoadSystemPrompt(r.cfg.SystemPromptPath)
	if err != nil {
		r.log.Warn().Err(err).Msg("system prompt unreadable, using default")
		prompt = llm.DefaultSystemPrompt
	}
	name := provider
	if model := factory.ModelName(provider); model != provider {
		name += "-" + model
	}
	r.log.Info().Str("provider", name).Msg("language model ready")
	return llm.NewAssistant(name, client, prompt, r.cfg.MaxSentences), nil
}

func (r *Robot) openJournal() {
	if r.cfg.JournalPath == "" {
		return
	}
	rec, err := storage.Open(r.cfg.JournalDriver, r.cfg.JournalPath)
	if err != nil {
		r.log.Warn().Err(err).Msg("journal disabled")
		return
	}
	r.journal = rec
	r.closers = append(r.closers, rec.Close)
}

// Run ведет диалог до фразы выхода или отмены ctx.
func (r *Robot) Run(ctx context.Context) error {
	brain, err := r.newAssistant(ctx)
	if err != nil {
		return err
	}
	recognizer, err := r.newRecognizer()
	if err != nil {
		return err
	}
	r.openJournal()

	store := history.Open(afero.NewOsFs(), r.cfg.HistoryPath(), r.cfg.HistoryCapacity, history.WithLogger(r.log))
	r.log.Info().
		Str("path", store.Path()).
		Int("loaded", store.Len()).
		Bool("durable", store.Durable()).
		Msg("history loaded")

	opts := []conversation.Option{conversation.WithLogger(r.log)}
	if r.journal != nil {
		opts = append(opts, conversation.WithJournal(r.journal))
	}
	ctrl := conversation.New(ControllerConfig(r.cfg), store, brain, r.synth, opts...)

	capture := &audio.Capture{
		Source: &audio.Microphone{SampleRate: r.cfg.SampleRate, FrameSize: r.cfg.FrameSize, Log: r.log},
		Segmenter: audio.NewSegmenter(audio.NewDetector(r.cfg.SampleRate, r.cfg.EnergyThreshold), audio.SegmenterConfig{
			SampleRate: r.cfg.SampleRate,
			QuietTime:  r.cfg.QuietTime,
			PreRoll:    r.cfg.PreRoll,
			MaxPhrase:  r.cfg.MaxPhrase,
		}),
	}
	mic := listener.New(capture, recognizer, ctrl, r.log)

	// слушатель и пульт живут, пока работает контроллер
	auxCtx, cancelAux := context.WithCancel(ctx)
	defer cancelAux()
	var wg sync.WaitGroup
	listenErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		listenErr <- mic.Run(auxCtx)
	}()
	if stop := r.startRemote(auxCtx, ctrl, &wg); stop != nil {
		defer stop()
	}

	ctrlCtx, cancelCtrl := context.WithCancel(ctx)
	defer cancelCtrl()
	ctrlErr := make(chan error, 1)
	go func() { ctrlErr <- ctrl.Run(ctrlCtx) }()

	var runErr error
	select {
	case runErr = <-ctrlErr:
	case err := <-listenErr:
		// без микрофона диалог невозможен
		if ctx.Err() == nil {
			if err == nil {
				err = errors.New("microphone stream ended")
			}
			r.log.Error().Err(err).Msg("listener stopped")
			runErr = err
		}
		cancelCtrl()
		<-ctrlErr
	}
	cancelAux()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		r.log.Warn().Dur("timeout", shutdownTimeout).Msg("background workers did not stop in time")
	}
	return runErr
}

// startRemote запускает Telegram-пульт и ежедневную сводку, если задан токен.
func (r *Robot) startRemote(ctx context.Context, ctrl *conversation.Controller, wg *sync.WaitGroup) func() {
	if r.cfg.TelegramBotToken == "" {
		return nil
	}
	var repo auth.Repository
	if r.cfg.AllowlistPath != "" {
		fr, err := auth.NewFileRepository(afero.NewOsFs(), r.cfg.AllowlistPath)
		if err != nil {
			r.log.Warn().Err(err).Msg("failed to init allowlist repo")
		} else {
			repo = fr
		}
	}
	authSvc, err := auth.NewWithRepo(repo, r.cfg.AllowedUsers, r.cfg.AdminUserID)
	if err != nil {
		r.log.Error().Err(err).Msg("remote control disabled: allowlist")
		return nil
	}

	vocab := Vocabulary(r.cfg)
	bot, err := telegram.New(r.cfg.TelegramBotToken, authSvc, ctrl, telegram.Phrases{Wake: first(vocab.Wake), Stop: first(vocab.Stop)}, r.log)
	if err != nil {
		r.log.Error().Err(err).Msg("remote control disabled")
		return nil
	}
	bot.SetDigestFunction(DigestFunc(r.journal, time.Now))

	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.Start(ctx)
	}()

	sched := scheduler.New(r.cfg.DigestSchedule, time.UTC, r.log)
	sched.SetReportFunction(bot.SendDigest)
	if err := sched.Start(); err != nil {
		r.log.Error().Err(err).Msg("digest schedule disabled")
		return nil
	}
	return sched.Stop
}

func first(phrases []string) string {
	if len(phrases) == 0 {
		return ""
	}
	return phrases[0]
}

// Close освобождает устройства в обратном порядке.
func (r *Robot) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
