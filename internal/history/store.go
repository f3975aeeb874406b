package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultCapacity — сколько последних обменов хранится в окне.
const DefaultCapacity = 10

// Store — ограниченное окно последних взаимодействий, сохраняемое в JSON-файл.
// Запись атомарна: временный файл в том же каталоге, затем rename.
// Пишет в окно только контроллер диалога; чтение безопасно из любых горутин.
type Store struct {
	mu       sync.RWMutex
	fs       afero.Fs
	path     string
	capacity int
	items    []Interaction
	nextSeq  uint64
	durable  bool
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Open загружает окно из path. Отсутствующий или битый файл дает пустую историю.
// Пустой path означает хранение только в памяти.
func Open(fs afero.Fs, path string, capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		fs:       fs,
		path:     path,
		capacity: capacity,
		nextSeq:  1,
		durable:  path != "",
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.durable {
		s.load()
	}
	return s
}

func (s *Store) load() {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info().Str("path", s.path).Msg("no history file yet, starting empty")
		return
	}
	if err != nil {
		s.degradeLocked(&PersistenceError{Op: "read", Path: s.path, Err: err})
		return
	}
	var items []Interaction
	if err := json.Unmarshal(data, &items); err != nil {
		quarantine := s.path + ".corrupt"
		if rerr := s.fs.Rename(s.path, quarantine); rerr != nil {
			s.log.Warn().Err(rerr).Str("path", s.path).Msg("failed to move corrupt history aside")
		}
		s.log.Warn().Err(err).Str("path", s.path).Str("moved_to", quarantine).Msg("corrupt history file, starting empty")
		return
	}

	// старые файлы не содержат номеров; номера обязаны строго расти
	var prev uint64
	for i := range items {
		if items[i].Sequence <= prev {
			items[i].Sequence = prev + 1
		}
		prev = items[i].Sequence
	}
	if len(items) > s.capacity {
		items = items[len(items)-s.capacity:]
	}
	s.items = items
	s.nextSeq = prev + 1
	s.log.Info().Str("path", s.path).Int("entries", len(items)).Uint64("next_sequence", s.nextSeq).Msg("history loaded")
}

// Append добавляет обмен в хвост, вытесняет самый старый при переполнении
// и сохраняет окно. Ошибка записи не мешает добавлению в памяти.
func (s *Store) Append(userText, assistantText string) Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := Interaction{
		Timestamp:     s.now(),
		UserText:      userText,
		AssistantText: assistantText,
		Sequence:      s.nextSeq,
	}
	s.nextSeq++
	s.items = append(s.items, it)
	if len(s.items) > s.capacity {
		s.items = append([]Interaction(nil), s.items[len(s.items)-s.capacity:]...)
	}
	if s.durable {
		if err := s.writeLocked(); err != nil {
			s.degradeLocked(err)
		}
	}
	return it
}

// Flush повторно записывает окно на диск. Вызывается при завершении.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	if !s.durable {
		return ErrDegraded
	}
	if err := s.writeLocked(); err != nil {
		s.degradeLocked(err)
		return err
	}
	return nil
}

func (s *Store) writeLocked() error {
	items := s.items
	if items == nil {
		items = []Interaction{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "create", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return &PersistenceError{Op: op, Path: s.path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return &PersistenceError{Op: "close", Path: s.path, Err: err}
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return &PersistenceError{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}

// degradeLocked переводит хранилище в режим "только память" и пишет в лог один раз.
func (s *Store) degradeLocked(err error) {
	if !s.durable {
		return
	}
	s.durable = false
	s.log.Error().Err(err).Str("path", s.path).Msg("history persistence failed, continuing in memory only")
}

// Durable сообщает, пишется ли история на диск.
func (s *Store) Durable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durable
}

func (s *Store) Path() string { return s.path }

func (s *Store) Capacity() int { return s.capacity }

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// First возвращает самый старый из сохраненных обменов.
func (s *Store) First() (Interaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return Interaction{}, false
	}
	return s.items[0], true
}

func (s *Store) Last() (Interaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return Interaction{}, false
	}
	return s.items[len(s.items)-1], true
}

// Recent возвращает до k последних обменов, новые первыми.
func (s *Store) Recent(k int) []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.items) == 0 {
		return nil
	}
	if k > len(s.items) {
		k = len(s.items)
	}
	out := make([]Interaction, 0, k)
	for i := len(s.items) - 1; i >= len(s.items)-k; i-- {
		out = append(out, s.items[i])
	}
	return out
}

// Repeat возвращает текст последнего ответа ассистента.
func (s *Store) Repeat() (string, bool) {
	last, ok := s.Last()
	if !ok {
		return "", false
	}
	return last.AssistantText, true
}

// Tail возвращает до k последних обменов в хронологическом порядке.
func (s *Store) Tail(k int) []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.items) == 0 {
		return nil
	}
	if k > len(s.items) {
		k = len(s.items)
	}
	return append([]Interaction(nil), s.items[len(s.items)-k:]...)
}

func (s *Store) All() []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Interaction(nil), s.items...)
}
