package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// maxEventLine ограничивает длину одной строки журнала при чтении.
const maxEventLine = 4 * 1024 * 1024

// FileRecorder пишет журнал в JSONL-файл, по событию на строку.
type FileRecorder struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileRecorder открывает журнал на диске.
func NewFileRecorder(path string) (*FileRecorder, error) {
	return NewFileRecorderFs(afero.NewOsFs(), path)
}

// NewFileRecorderFs открывает журнал в произвольной файловой системе.
// Каталог и пустой файл создаются сразу, чтобы ошибки прав доступа
// проявлялись при старте, а не на первом событии.
func NewFileRecorderFs(fsys afero.Fs, path string) (*FileRecorder, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure journal dir: %w", err)
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to init journal file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to init journal file: %w", err)
	}
	return &FileRecorder{fs: fsys, path: path}, nil
}

func (r *FileRecorder) AppendEvent(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Kind, err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.fs.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal for append: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append %s event: %w", event.Kind, err)
	}
	return f.Close()
}

// LoadEvents пропускает строки, которые не удалось разобрать:
// оборванная при падении запись не должна прятать весь журнал.
func (r *FileRecorder) LoadEvents() ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.fs.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	var events []Event
	for s.Scan() {
		var ev Event
		if len(s.Bytes()) == 0 || json.Unmarshal(s.Bytes(), &ev) != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return events, nil
}

// Close ничего не держит: файл открывается на каждую операцию.
func (r *FileRecorder) Close() error { return nil }
