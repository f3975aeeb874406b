package conversation

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rainbow-robot/internal/history"
	"rainbow-robot/internal/speech"
	"rainbow-robot/internal/storage"
)

// ErrStopped — контроллер уже завершил работу.
var ErrStopped = errors.New("conversation controller stopped")

// Responder — языковая модель с учетом истории.
type Responder interface {
	Name() string
	Reply(ctx context.Context, prompt string, turns []history.Interaction) (string, error)
}

// Synthesizer — то, что контроллеру нужно от синтеза речи.
type Synthesizer interface {
	Name() string
	Speak(ctx context.Context, text string) (*speech.Handle, error)
}

// Journal принимает события для журнала. Ошибки журнала на диалог не влияют.
type Journal interface {
	AppendEvent(storage.Event) error
}

type Config struct {
	Vocabulary      Vocabulary
	ListenTimeout   time.Duration
	MaxSilence      int
	ModelTimeout    time.Duration
	CancelTimeout   time.Duration
	FarewellTimeout time.Duration
	HistoryContext  int
	RecentCount     int
	Greeting        bool
	EventBuffer     int
}

func (c Config) withDefaults() Config {
	if c.Vocabulary.Wake == nil && c.Vocabulary.Stop == nil && c.Vocabulary.Quit == nil {
		c.Vocabulary = DefaultVocabulary(false)
	}
	if c.ListenTimeout <= 0 {
		c.ListenTimeout = 20 * time.Second
	}
	if c.MaxSilence <= 0 {
		c.MaxSilence = 3
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = 30 * time.Second
	}
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = 500 * time.Millisecond
	}
	if c.FarewellTimeout <= 0 {
		c.FarewellTimeout = 5 * time.Second
	}
	if c.HistoryContext <= 0 {
		c.HistoryContext = history.DefaultCapacity
	}
	if c.RecentCount <= 0 {
		c.RecentCount = 3
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 16
	}
	return c
}

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option { return func(c *Controller) { c.log = l } }

func WithJournal(j Journal) Option { return func(c *Controller) { c.journal = j } }

// WithTransitionHook вызывается из цикла контроллера при каждой смене состояния.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Controller) { c.onTransition = fn }
}

const (
	kindSleep    = "sleep"
	kindFarewell = "farewell"

	// Распознавание отстает от речи: эхо последней фразы ждем еще echoWindow после ее конца.
	echoWindow   = 3 * time.Second
	echoMinWords = 3
)

type utterance struct {
	handle *speech.Handle
	kind   string
	next   State
}

type generation struct {
	id     uint64
	prompt string
	cancel context.CancelFunc
}

type modelResult struct {
	id     uint64
	prompt string
	reply  string
	err    error
}

// Controller — конечный автомат диалога. Все решения принимаются в одной
// горутине Run; источники событий пишут в ограниченный канал через Submit.
type Controller struct {
	cfg          Config
	store        *history.Store
	brain        Responder
	synth        Synthesizer
	journal      Journal
	log          zerolog.Logger
	onTransition func(from, to State)

	events  chan Event
	replies chan modelResult
	done    chan struct{}
	state   atomic.Int32
	started atomic.Bool

	// принадлежат циклу Run
	speaking    *utterance
	draining    *speech.Handle
	thinking    *generation
	genSeq      uint64
	silence     int
	session     string
	lastSaid    string
	lastSaidEnd time.Time
	listenTimer *time.Timer
	listenC     <-chan time.Time
}

func New(cfg Config, store *history.Store, brain Responder, synth Synthesizer, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:     cfg,
		store:   store,
		brain:   brain,
		synth:   synth,
		log:     zerolog.Nop(),
		events:  make(chan Event, cfg.EventBuffer),
		replies: make(chan modelResult, 1),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.state.Store(int32(StateIdle))
	return c
}

func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) History() *history.Store { return c.store }

// Submit кладет событие в очередь контроллера. Блокируется, пока очередь полна.
func (c *Controller) Submit(ctx context.Context, ev Event) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Done закрывается, когда Run вернул управление.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run обрабатывает события до фразы выхода или отмены ctx.
// В обоих случаях история сбрасывается на диск, а состояние становится Shutdown.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("conversation controller already running")
	}
	defer close(c.done)
	c.log.Info().
		Str("state", c.State().String()).
		Str("synthesizer", c.synth.Name()).
		Str("model", c.brain.Name()).
		Msg("conversation controller started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown(ctx, "context cancelled", false)
			return nil
		case ev := <-c.events:
			if quit := c.handleEvent(ctx, ev); quit {
				c.shutdown(ctx, "quit phrase", true)
				return nil
			}
		case res := <-c.replies:
			c.handleReply(ctx, res)
		case <-c.speechDone():
			c.handleSpeechDone()
		case <-c.listenC:
			c.listenTimer, c.listenC = nil, nil
			c.handleSilence(ctx)
		}
	}
}

func (c *Controller) speechDone() <-chan struct{} {
	if c.speaking == nil {
		return nil
	}
	return c.speaking.handle.Done()
}

func (c *Controller) handleEvent(ctx context.Context, ev Event) bool {
	state := c.State()
	if ev.Type == EventRecognitionFailed {
		c.log.Warn().Err(ev.Err).
			Str("state", state.String()).
			Str("source", ev.Source).
			Str("session", c.session).
			Msg("recognition failed")
		c.record(storage.Event{Kind: storage.KindRecognitionError, Source: ev.Source, Detail: errString(ev.Err)})
		return false
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return false
	}
	if c.isEcho(text) {
		c.log.Debug().Str("source", ev.Source).Str("text", text).Msg("own speech echo ignored")
		return false
	}
	cls := c.cfg.Vocabulary.Classify(text, state)
	c.log.Info().
		Str("state", state.String()).
		Str("source", ev.Source).
		Str("text", text).
		Str("classification", cls.String()).
		Str("session", c.session).
		Msg("utterance classified")

	switch cls.Kind {
	case KindQuit:
		return true
	case KindStop:
		c.onStop(state)
	case KindWake:
		c.onWake(ctx, state, ev.Source)
	case KindHistoryQuery:
		c.onHistoryQuery(ctx, cls.Query, text)
	default:
		c.onUtterance(ctx, state, text)
	}
	return false
}

// isEcho: транскрипт целиком взят из последней фразы робота.
// Короткие фразы вроде "stop" эхом не считаются.
func (c *Controller) isEcho(text string) bool {
	if c.lastSaid == "" {
		return false
	}
	if c.speaking == nil && time.Since(c.lastSaidEnd) > echoWindow {
		return false
	}
	norm := normalize(text)
	return len(strings.Fields(norm)) >= echoMinWords && strings.Contains(c.lastSaid, norm)
}

func (c *Controller) onStop(state State) {
	switch state {
	case StateSpeaking:
		c.interrupt("stop phrase")
		c.silence = 0
		c.transition(StateListening)
	case StateThinking:
		c.abandon("stop phrase")
		c.silence = 0
		c.transition(StateListening)
	default:
		c.log.Debug().Str("state", state.String()).Msg("stop phrase ignored, nothing to stop")
	}
}

func (c *Controller) onWake(ctx context.Context, state State, source string) {
	switch state {
	case StateIdle:
		c.session = uuid.NewString()
		c.silence = 0
		c.log.Info().Str("session", c.session).Str("source", source).Msg("wake phrase detected, session opened")
		c.record(storage.Event{Kind: storage.KindWake, Source: source})
		if c.cfg.Greeting {
			c.speak(ctx, GreetingText, "greeting", StateListening)
			return
		}
		c.transition(StateListening)
	case StateSpeaking:
		if c.speaking != nil && c.speaking.kind == kindSleep {
			c.log.Debug().Str("source", source).Msg("wake phrase ignored during sleep notice")
			return
		}
		c.interrupt("wake phrase")
		c.rearm(source)
		c.transition(StateListening)
	case StateThinking:
		c.abandon("wake phrase")
		c.rearm(source)
		c.transition(StateListening)
	case StateListening:
		c.rearm(source)
		c.transition(StateListening)
	}
}

func (c *Controller) rearm(source string) {
	if c.session == "" {
		c.session = uuid.NewString()
	}
	c.silence = 0
	c.log.Info().Str("session", c.session).Str("source", source).Msg("wake phrase detected, session re-armed")
	c.record(storage.Event{Kind: storage.KindWake, Source: source, Detail: "rearm"})
}

func (c *Controller) onHistoryQuery(ctx context.Context, q QueryKind, text string) {
	c.silence = 0
	answer := AnswerHistory(c.store, q, c.cfg.RecentCount)
	c.log.Info().
		Str("query", q.String()).
		Int("history_size", c.store.Len()).
		Str("session", c.session).
		Msg("answering from history")
	c.record(storage.Event{Kind: storage.KindHistoryQuery, UserText: text, AssistantText: answer, Detail: q.String()})
	c.speak(ctx, answer, "history_"+q.String(), StateListening)
}

func (c *Controller) onUtterance(ctx context.Context, state State, text string) {
	if state != StateListening {
		c.log.Debug().Str("state", state.String()).Str("text", text).Msg("utterance ignored")
		return
	}
	c.silence = 0
	c.think(ctx, text)
}

func (c *Controller) think(ctx context.Context, prompt string) {
	c.genSeq++
	id := c.genSeq
	gctx, cancel := context.WithTimeout(ctx, c.cfg.ModelTimeout)
	c.thinking = &generation{id: id, prompt: prompt, cancel: cancel}
	turns := c.store.Tail(c.cfg.HistoryContext)
	c.transition(StateThinking)
	c.log.Info().
		Str("provider", c.brain.Name()).
		Int("context_turns", len(turns)).
		Str("session", c.session).
		Msg("invoking language model")

	go func() {
		reply, err := c.brain.Reply(gctx, prompt, turns)
		cancel()
		select {
		case c.replies <- modelResult{id: id, prompt: prompt, reply: reply, err: err}:
		case <-c.done:
		}
	}()
}

func (c *Controller) handleReply(ctx context.Context, res modelResult) {
	if c.thinking == nil || c.thinking.id != res.id {
		c.log.Debug().Uint64("generation", res.id).Msg("discarding stale model reply")
		return
	}
	c.thinking = nil
	if res.err != nil {
		c.log.Error().Err(res.err).
			Str("state", StateThinking.String()).
			Str("provider", c.brain.Name()).
			Str("session", c.session).
			Msg("language model failed")
		c.record(storage.Event{Kind: storage.KindModelError, UserText: res.prompt, Provider: c.brain.Name(), Detail: errString(res.err)})
		c.speak(ctx, ApologyText, "apology", StateListening)
		return
	}
	it := c.store.Append(res.prompt, res.reply)
	c.log.Info().
		Uint64("sequence", it.Sequence).
		Str("provider", c.brain.Name()).
		Str("session", c.session).
		Msg("model replied")
	c.record(storage.Event{
		Kind:          storage.KindInteraction,
		UserText:      it.UserText,
		AssistantText: it.AssistantText,
		Sequence:      it.Sequence,
		Provider:      c.brain.Name(),
	})
	c.speak(ctx, res.reply, "reply", StateListening)
}

// speak запускает синтез. Пока предыдущая фраза не завершена или не отменена, новая не начинается.
func (c *Controller) speak(ctx context.Context, text, kind string, next State) {
	if c.speaking != nil {
		c.interrupt("superseded")
	}
	if !c.awaitDrain(ctx) {
		c.log.Warn().Str("kind", kind).Str("session", c.session).Msg("utterance dropped, previous speech still playing")
		c.transition(next)
		return
	}
	h, err := c.synth.Speak(ctx, text)
	if err != nil {
		c.synthesisFailed(kind, err)
		c.transition(next)
		return
	}
	c.speaking = &utterance{handle: h, kind: kind, next: next}
	c.lastSaid = normalize(text)
	c.log.Debug().Str("kind", kind).Str("provider", c.synth.Name()).Msg("speaking")
	c.transition(StateSpeaking)
}

// awaitDrain ждет фразу, не подтвердившую отмену, не дольше CancelTimeout.
// false — она все еще звучит, начинать новую нельзя.
func (c *Controller) awaitDrain(ctx context.Context) bool {
	if c.draining == nil {
		return true
	}
	timer := time.NewTimer(c.cfg.CancelTimeout)
	defer timer.Stop()
	select {
	case <-c.draining.Done():
		c.draining = nil
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) handleSpeechDone() {
	u := c.speaking
	c.speaking = nil
	c.lastSaidEnd = time.Now()
	if err := u.handle.Err(); err != nil {
		c.synthesisFailed(u.kind, err)
	}
	c.transition(u.next)
}

func (c *Controller) synthesisFailed(kind string, err error) {
	c.log.Error().Err(err).
		Str("state", c.State().String()).
		Str("provider", c.synth.Name()).
		Str("kind", kind).
		Str("session", c.session).
		Msg("speech synthesis failed")
	c.record(storage.Event{Kind: storage.KindSynthesisError, Provider: c.synth.Name(), Detail: errString(err)})
}

// interrupt отменяет текущую фразу и ждет подтверждения не дольше CancelTimeout.
func (c *Controller) interrupt(reason string) {
	u := c.speaking
	if u == nil {
		return
	}
	c.speaking = nil
	c.lastSaidEnd = time.Now()
	started := time.Now()
	u.handle.Cancel()
	timer := time.NewTimer(c.cfg.CancelTimeout)
	defer timer.Stop()
	select {
	case <-u.handle.Done():
	case <-timer.C:
		c.draining = u.handle
		c.log.Warn().
			Str("provider", c.synth.Name()).
			Dur("timeout", c.cfg.CancelTimeout).
			Msg("synthesis did not acknowledge cancel in time")
	}
	c.log.Info().
		Str("reason", reason).
		Str("kind", u.kind).
		Dur("took", time.Since(started)).
		Str("session", c.session).
		Msg("speech interrupted")
	c.record(storage.Event{Kind: storage.KindInterrupt, Provider: c.synth.Name(), Detail: reason})
}

func (c *Controller) abandon(reason string) {
	g := c.thinking
	if g == nil {
		return
	}
	c.thinking = nil
	g.cancel()
	c.log.Info().Str("reason", reason).Uint64("generation", g.id).Msg("model request abandoned")
}

func (c *Controller) handleSilence(ctx context.Context) {
	if c.State() != StateListening {
		return
	}
	c.silence++
	remaining := c.cfg.MaxSilence - c.silence
	c.log.Info().
		Int("silence", c.silence).
		Int("remaining", remaining).
		Str("session", c.session).
		Msg("no speech in listen window")
	if remaining <= 0 {
		c.record(storage.Event{Kind: storage.KindSleep, Detail: "silence"})
		c.speak(ctx, SleepText, kindSleep, StateIdle)
		return
	}
	c.speak(ctx, repromptText(remaining), "reprompt", StateListening)
}

func (c *Controller) transition(to State) {
	from := State(c.state.Swap(int32(to)))
	switch to {
	case StateListening:
		c.armListenTimer()
	case StateIdle:
		c.stopListenTimer()
		if c.session != "" {
			c.log.Info().Str("session", c.session).Msg("session closed")
		}
		c.session = ""
		c.silence = 0
	default:
		c.stopListenTimer()
	}
	if from == to {
		return
	}
	c.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state transition")
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

func (c *Controller) armListenTimer() {
	c.stopListenTimer()
	c.listenTimer = time.NewTimer(c.cfg.ListenTimeout)
	c.listenC = c.listenTimer.C
}

func (c *Controller) stopListenTimer() {
	if c.listenTimer != nil {
		c.listenTimer.Stop()
	}
	c.listenTimer, c.listenC = nil, nil
}

func (c *Controller) shutdown(ctx context.Context, reason string, farewell bool) {
	c.interrupt(reason)
	c.abandon(reason)
	if farewell {
		c.farewell(ctx)
	}
	if err := c.store.Flush(); err != nil {
		if errors.Is(err, history.ErrDegraded) {
			c.log.Debug().Msg("history flush skipped, persistence disabled")
		} else {
			c.log.Error().Err(err).Msg("history flush failed")
		}
	}
	c.record(storage.Event{Kind: storage.KindShutdown, Detail: reason})
	c.transition(StateShutdown)
	c.log.Info().Str("reason", reason).Int("history_size", c.store.Len()).Msg("conversation controller stopped")
}

// farewell прощается и ждет конца фразы не дольше FarewellTimeout.
func (c *Controller) farewell(ctx context.Context) {
	if !c.awaitDrain(ctx) {
		c.log.Warn().Msg("farewell skipped, previous speech still playing")
		return
	}
	fctx, cancel := context.WithTimeout(ctx, c.cfg.FarewellTimeout)
	defer cancel()
	h, err := c.synth.Speak(fctx, FarewellText)
	if err != nil {
		c.synthesisFailed(kindFarewell, err)
		return
	}
	c.speaking = &utterance{handle: h, kind: kindFarewell, next: StateShutdown}
	c.transition(StateSpeaking)
	select {
	case <-h.Done():
		c.speaking = nil
		if err := h.Err(); err != nil {
			c.synthesisFailed(kindFarewell, err)
		}
	case <-fctx.Done():
		c.interrupt("farewell timeout")
	}
}

func (c *Controller) record(ev storage.Event) {
	if c.journal == nil {
		return
	}
	ev.Timestamp = time.Now()
	ev.SessionID = c.session
	if ev.State == "" {
		ev.State = c.State().String()
	}
	if err := c.journal.AppendEvent(ev); err != nil {
		c.log.Warn().Err(err).Str("kind", ev.Kind).Msg("journal write failed")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
