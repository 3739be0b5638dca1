package response

import (
	"fmt"
	"sort"
	"sync"
)

// FileRef points at binary content selected for a file field. The store only
// keeps the reference; the bytes (or the path to them) travel with it to the
// submission payload.
type FileRef struct {
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Path        string `json:"path,omitempty"`
	Data        []byte `json:"-"`
}

// IsZero reports whether no file has been selected.
func (f FileRef) IsZero() bool {
	return f.Filename == "" && f.Path == "" && len(f.Data) == 0
}

// Store tracks the current value of every declared field. After New every
// key present in defaults exists in the store, even before any user input.
type Store struct {
	mu       sync.RWMutex
	values   map[string]any
	defaults map[string]any
}

// New seeds the store with the supplied defaults.
func New(defaults map[string]any) *Store {
	return &Store{
		values:   cloneValues(defaults),
		defaults: cloneValues(defaults),
	}
}

// Get returns the value stored under name.
func (s *Store) Get(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[name]
	return copyValue(value), ok
}

// Set writes a value. Only string, bool, []string and FileRef are accepted.
func (s *Store) Set(name string, value any) error {
	if s == nil {
		return fmt.Errorf("response: store is nil")
	}
	switch value.(type) {
	case string, bool, []string, FileRef:
	default:
		return fmt.Errorf("response: unsupported value %T for %q", value, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[name] = copyValue(value)
	return nil
}

// String returns the value under name when it holds a string.
func (s *Store) String(name string) string {
	value, _ := s.Get(name)
	str, _ := value.(string)
	return str
}

// Bool returns the value under name when it holds a bool.
func (s *Store) Bool(name string) bool {
	value, _ := s.Get(name)
	b, _ := value.(bool)
	return b
}

// Strings returns the value under name when it holds a list.
func (s *Store) Strings(name string) []string {
	value, _ := s.Get(name)
	list, _ := value.([]string)
	return list
}

// File returns the file reference under name.
func (s *Store) File(name string) FileRef {
	value, _ := s.Get(name)
	ref, _ := value.(FileRef)
	return ref
}

// Snapshot returns a copy of every stored value.
func (s *Store) Snapshot() map[string]any {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValues(s.values)
}

// Keys returns the stored keys sorted.
func (s *Store) Keys() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Reset restores every key to its default and drops keys that were added
// after construction.
func (s *Store) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = cloneValues(s.defaults)
}

// IsEmpty reports whether value counts as "not provided": an empty string,
// false, an empty list, a zero FileRef or nil.
func IsEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case bool:
		return !typed
	case []string:
		return len(typed) == 0
	case FileRef:
		return typed.IsZero()
	default:
		return false
	}
}

func cloneValues(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(value any) any {
	switch typed := value.(type) {
	case []string:
		return append([]string{}, typed...)
	case FileRef:
		typed.Data = append([]byte(nil), typed.Data...)
		return typed
	default:
		return typed
	}
}
