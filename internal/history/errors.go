package history

import (
	"errors"
	"fmt"
)

// ErrDegraded возвращается Flush после того, как запись на диск уже однажды не удалась.
var ErrDegraded = errors.New("history persistence disabled after an earlier failure")

// PersistenceError — ошибка чтения или записи файла истории.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
