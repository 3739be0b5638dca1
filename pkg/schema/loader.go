package schema

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store keeps parsed schemas keyed by form id. It is safe for concurrent
// readers when treated as immutable after construction.
type Store struct {
	forms map[string]FormSchema
}

// LoadFile parses a single JSON or YAML schema from disk.
func LoadFile(path string) (FormSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FormSchema{}, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// LoadFS walks fsys and parses every JSON/YAML schema document. A nil fsys
// yields an empty store.
func LoadFS(fsys fs.FS) (*Store, error) {
	store := &Store{forms: make(map[string]FormSchema)}
	if fsys == nil {
		return store, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isSchemaFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("schema: read %s: %w", path, err)
		}
		form, err := Parse(data, path)
		if err != nil {
			return err
		}

		id := strings.TrimSpace(form.ID)
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			form.ID = id
		}
		if _, exists := store.forms[id]; exists {
			return fmt.Errorf("schema: duplicate form %q (file %s)", id, path)
		}
		store.forms[id] = form
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewStore builds a store from already parsed schemas.
func NewStore(forms ...FormSchema) *Store {
	store := &Store{forms: make(map[string]FormSchema, len(forms))}
	for _, form := range forms {
		store.forms[form.ID] = form
	}
	return store
}

// Form returns the schema registered under id.
func (s *Store) Form(id string) (FormSchema, bool) {
	if s == nil {
		return FormSchema{}, false
	}
	form, ok := s.forms[id]
	return form, ok
}

// IDs returns the registered form ids sorted.
func (s *Store) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.forms))
	for id := range s.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
