package user

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// User is a bridge client allowed to call commands.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// Store manages user persistence. The file is a JSON object keyed by
// username so it stays easy to edit by hand.
type Store struct {
	mu       sync.RWMutex
	filePath string
	Users    map[string]*User `json:"users"`
}

// NewStore creates a new user store backed by the given file path.
// It loads existing users if the file exists.
func NewStore(path string) (*Store, error) {
	s := &Store{
		filePath: path,
		Users:    make(map[string]*User),
	}

	if err := s.load(); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.Users); err != nil {
		return fmt.Errorf("parse %s: %w", s.filePath, err)
	}
	if s.Users == nil {
		s.Users = make(map[string]*User)
	}
	return nil
}

// Path is the backing file.
func (s *Store) Path() string { return s.filePath }

// Save persists the users to disk. The file is replaced atomically so a
// crash never leaves a half-written store behind.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.Users, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.filePath)
}

// Add creates a new user. Call Save to persist it.
func (s *Store) Add(username, password string) error {
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.Users[username]; exists {
		return fmt.Errorf("user %s already exists", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.Users[username] = &User{
		Username:     username,
		PasswordHash: string(hash),
	}
	return nil
}

// Delete removes a user and reports whether it existed.
func (s *Store) Delete(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Users[username]
	delete(s.Users, username)
	return ok
}

// Authenticate verifies password for a user.
func (s *Store) Authenticate(username, password string) bool {
	s.mu.RLock()
	u, ok := s.Users[username]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// List returns all usernames in sorted order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.Users))
	for k := range s.Users {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
