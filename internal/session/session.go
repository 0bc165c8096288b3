// Package session hands out window ids per session key. An id outlives the
// process that asked for it, so restarting an instance for the same window
// reuses it, until the instance forgets it after its window closed or the
// login session ends.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/winmesh/internal/runtimepath"
)

// idPrefix marks generated window ids.
const idPrefix = "screenId_"

// NewWindowID generates a fresh window id.
func NewWindowID() string {
	return idPrefix + uuid.NewString()
}

// Provider stores one window id per session key.
type Provider interface {
	WindowID(key string) (string, error)
	Forget(key string) error
}

// Entry is one registry record.
type Entry struct {
	WindowID  string    `json:"window_id"`
	CreatedAt time.Time `json:"created_at"`
}

type registry struct {
	Sessions map[string]Entry `json:"sessions"`
}

// FileProvider keeps the registry as JSON in the runtime directory, which is
// cleared at logout.
type FileProvider struct {
	path string
	mu   sync.Mutex
}

var _ Provider = (*FileProvider)(nil)

// NewFileProvider uses path, or the default registry path when path is empty.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		p, err := runtimepath.SessionRegistryPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FileProvider{path: path}, nil
}

// Path returns the registry file.
func (p *FileProvider) Path() string {
	return p.path
}

// WindowID returns the id stored for key, creating it on first use.
func (p *FileProvider) WindowID(key string) (string, error) {
	if key == "" {
		return "", errors.New("session key must not be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reg, err := p.load()
	if err != nil {
		return "", err
	}
	if e, ok := reg.Sessions[key]; ok && e.WindowID != "" {
		return e.WindowID, nil
	}

	id := NewWindowID()
	reg.Sessions[key] = Entry{WindowID: id, CreatedAt: time.Now()}
	if err := p.save(reg); err != nil {
		return "", err
	}
	return id, nil
}

// Forget drops key from the registry.
func (p *FileProvider) Forget(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	reg, err := p.load()
	if err != nil {
		return err
	}
	if _, ok := reg.Sessions[key]; !ok {
		return nil
	}
	delete(reg.Sessions, key)
	return p.save(reg)
}

// List returns a copy of every stored session.
func (p *FileProvider) List() (map[string]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reg, err := p.load()
	if err != nil {
		return nil, err
	}
	return reg.Sessions, nil
}

func (p *FileProvider) load() (*registry, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &registry{Sessions: make(map[string]Entry)}, nil
		}
		return nil, fmt.Errorf("failed to read session registry: %w", err)
	}

	var reg registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse session registry: %w", err)
	}
	if reg.Sessions == nil {
		reg.Sessions = make(map[string]Entry)
	}
	return &reg, nil
}

// save writes through a temp file so concurrent readers never see a partial
// registry.
func (p *FileProvider) save(reg *registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("failed to create session registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".winmesh-sessions-*")
	if err != nil {
		return fmt.Errorf("failed to write session registry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("failed to write session registry: %w", err)
	}
	return nil
}

// MemoryProvider keeps ids for the life of the process.
type MemoryProvider struct {
	mu  sync.Mutex
	ids map[string]string
}

var _ Provider = (*MemoryProvider)(nil)

// NewMemoryProvider returns an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{ids: make(map[string]string)}
}

func (m *MemoryProvider) WindowID(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ids[key]; ok {
		return id, nil
	}
	id := NewWindowID()
	m.ids[key] = id
	return id, nil
}

func (m *MemoryProvider) Forget(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ids, key)
	return nil
}

// Session binds a provider to one key. The id is cached after the first
// lookup for the life of the process.
type Session struct {
	provider Provider
	key      string

	mu sync.Mutex
	id string
}

// Bind returns the session for key.
func Bind(provider Provider, key string) *Session {
	return &Session{provider: provider, key: key}
}

// Key returns the session key.
func (s *Session) Key() string {
	return s.key
}

// WindowID returns the cached id, loading it from the provider once.
func (s *Session) WindowID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return s.id, nil
	}
	id, err := s.provider.WindowID(s.key)
	if err != nil {
		return "", err
	}
	s.id = id
	return id, nil
}

// Forget drops the stored id so a later run of this key gets a new one.
func (s *Session) Forget() error {
	s.mu.Lock()
	s.id = ""
	s.mu.Unlock()
	return s.provider.Forget(s.key)
}
