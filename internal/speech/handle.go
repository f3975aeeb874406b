package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Handle — одна запущенная фраза синтеза.
//
// Провайдер создает Handle через NewHandle, работает с возвращенным контекстом
// и вызывает Finish ровно по завершении. Cancel можно звать сколько угодно раз
// и в любой момент, в том числе после естественного завершения.
type Handle struct {
	provider string
	text     string
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	canceled atomic.Bool
	err      error
}

func NewHandle(parent context.Context, provider, text string) (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		provider: provider,
		text:     text,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	return h, ctx
}

func (h *Handle) Text() string { return h.text }

// Done закрывается, когда звук больше не выводится.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel просит немедленно остановить вывод.
func (h *Handle) Cancel() {
	select {
	case <-h.done:
		return
	default:
	}
	h.canceled.Store(true)
	h.cancel()
}

// Canceled сообщает, была ли фраза прервана до завершения.
func (h *Handle) Canceled() bool { return h.canceled.Load() }

// Err возвращает *SynthesisError, если вывод не удался. Прерванная фраза ошибкой не считается.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Finish фиксирует результат и закрывает Done. Повторные вызовы игнорируются.
func (h *Handle) Finish(err error) {
	h.once.Do(func() {
		if err != nil && !(h.canceled.Load() && errors.Is(err, context.Canceled)) {
			var se *SynthesisError
			if !errors.As(err, &se) {
				err = &SynthesisError{Provider: h.provider, Err: err}
			}
			h.err = err
		}
		h.cancel()
		close(h.done)
	})
}
