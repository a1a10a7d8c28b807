package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CredentialStore は「誰がログインしているか」の永続ポインタを保持する。
// 保存されるのはユーザーIDのみで、トークンやパスワードは決して保持しない。
// ポインタの存在は「セッションが存在するかもしれない」ことを意味し、
// 不在は起動時の復元を試みないことを保証する。
type CredentialStore interface {
	// Load は保存されたユーザーIDを返す。未保存の場合は空文字列を返す（エラーではない）。
	Load() (string, error)
	Save(userID string) error
	// Clear は保存を削除する。未保存でも成功する（冪等）。
	Clear() error
}

// FileCredentialStore はユーザーIDを単一ファイルに保存するCredentialStore実装。
type FileCredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewFileCredentialStore は指定パスにユーザーIDを保存するストアを生成する。
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

func (s *FileCredentialStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileCredentialStore) Save(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(userID), 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

func (s *FileCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

// MemoryCredentialStore はテスト用のインメモリCredentialStore実装。
type MemoryCredentialStore struct {
	mu     sync.Mutex
	userID string
}

// NewMemoryCredentialStore は空のインメモリストアを生成する。
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, nil
}

func (s *MemoryCredentialStore) Save(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	return nil
}

func (s *MemoryCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	return nil
}
