// internal/params/presets.go
package params

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// presetFile is the on-disk layout of the preset store.
type presetFile struct {
	Default string                `yaml:"default,omitempty"`
	Presets map[string]Parameters `yaml:"presets"`
}

// Store persists named parameter presets and a default-preset pointer in a
// yaml file. Reads always go to disk so edits from another process show up.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by path. The file is created on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) read() (*presetFile, error) {
	f := &presetFile{Presets: map[string]Parameters{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", s.path, err)
	}
	if f.Presets == nil {
		f.Presets = map[string]Parameters{}
	}
	return f, nil
}

func (s *Store) write(f *presetFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load returns the named preset. ok is false when no such preset exists. A
// stored preset that no longer validates is reported as an error.
func (s *Store) Load(name string) (p Parameters, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return Parameters{}, false, err
	}
	raw, ok := f.Presets[name]
	if !ok {
		return Parameters{}, false, nil
	}
	p, err = New(raw)
	if err != nil {
		return Parameters{}, true, fmt.Errorf("preset %q: %w", name, err)
	}
	return p, true, nil
}

// Save validates p and stores it under name, replacing any existing preset.
func (s *Store) Save(name string, p Parameters) error {
	if name == "" {
		return fmt.Errorf("preset name is required")
	}
	p, err := New(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	f.Presets[name] = p
	return s.write(f)
}

// Delete removes a preset. Deleting the default preset clears the pointer.
// It reports whether the preset existed.
func (s *Store) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return false, err
	}
	if _, ok := f.Presets[name]; !ok {
		return false, nil
	}
	delete(f.Presets, name)
	if f.Default == name {
		f.Default = ""
	}
	return true, s.write(f)
}

// Names returns preset names in sorted order.
func (s *Store) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Presets))
	for n := range f.Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// DefaultName returns the default preset name, or "" when none is set.
func (s *Store) DefaultName() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return "", err
	}
	return f.Default, nil
}

// SetDefault points the default at an existing preset. An empty name clears it.
func (s *Store) SetDefault(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	if name != "" {
		if _, ok := f.Presets[name]; !ok {
			return fmt.Errorf("preset %q not found", name)
		}
	}
	f.Default = name
	return s.write(f)
}

// Resolve picks the parameters for a run: the named preset when name is set,
// otherwise the default preset, otherwise Defaults().
func (s *Store) Resolve(name string) (Parameters, string, error) {
	if name == "" {
		def, err := s.DefaultName()
		if err != nil {
			return Parameters{}, "", err
		}
		if def == "" {
			return Defaults(), "", nil
		}
		name = def
	}
	p, ok, err := s.Load(name)
	if err != nil {
		return Parameters{}, "", err
	}
	if !ok {
		return Parameters{}, "", fmt.Errorf("preset %q not found", name)
	}
	return p, name, nil
}
