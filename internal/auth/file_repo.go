package auth

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"

	"github.com/spf13/afero"
)

// FileRepository хранит список в JSON-файле.
type FileRepository struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewFileRepository(fsys afero.Fs, path string) (*FileRepository, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	return &FileRepository{fs: fsys, path: path}, nil
}

func (r *FileRepository) LoadAll() ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Upsert(user User) error {
	return r.update(func(users []User) []User {
		for i := range users {
			if users[i].ID == user.ID {
				users[i] = user
				return users
			}
		}
		return append(users, user)
	})
}

func (r *FileRepository) Remove(userID int64) error {
	return r.update(func(users []User) []User {
		return slices.DeleteFunc(users, func(u User) bool { return u.ID == userID })
	})
}

// update перечитывает файл под блокировкой: список могли поправить руками.
func (r *FileRepository) update(change func([]User) []User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	return r.saveUnlocked(change(users))
}

// loadUnlocked: отсутствующий или пустой файл — пустой список.
func (r *FileRepository) loadUnlocked() ([]User, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []User{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	if len(data) == 0 {
		return []User{}, nil
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse allowlist %s: %w", r.path, err)
	}
	return users, nil
}

// saveUnlocked пишет во временный файл и переименовывает его,
// чтобы оборванная запись не стерла список.
func (r *FileRepository) saveUnlocked(users []User) error {
	slices.SortFunc(users, func(a, b User) int { return cmp.Compare(a.ID, b.ID) })
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode allowlist: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write allowlist: %w", err)
	}
	if err := r.fs.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace allowlist: %w", err)
	}
	return nil
}
