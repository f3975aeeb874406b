package storage

import "fmt"

// Open выбирает реализацию журнала по имени драйвера: "jsonl" или "sqlite".
func Open(driver, path string) (Recorder, error) {
	switch driver {
	case "", "jsonl":
		return NewFileRecorder(path)
	case "sqlite":
		return NewSQLiteRecorder(path)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}
}
