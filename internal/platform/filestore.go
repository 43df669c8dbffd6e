package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	Fonts []fileEntry `yaml:"fonts"`
}

type fileEntry struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// FileStore is a Store persisted as a YAML document. Entries keep insertion
// order, which is the enumeration order seen by ValueNames. Every mutation is
// written through before returning.
type FileStore struct {
	path string
	doc  fileDocument
}

// OpenFileStore loads the store at path. With create, a missing file and its
// parent directories are created empty.
func OpenFileStore(path string, create bool) (*FileStore, error) {
	s := &FileStore{path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("parsing registration store %s: %w", path, err)
		}
		return s, nil
	case errors.Is(err, fs.ErrNotExist) && create:
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating registration store directory: %w", err)
		}
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("opening registration store %s: %w", path, err)
	}
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) ValueNames() ([]string, error) {
	names := make([]string, 0, len(s.doc.Fonts))
	for _, e := range s.doc.Fonts {
		names = append(names, e.Name)
	}
	return names, nil
}

func (s *FileStore) GetValue(name string) (string, error) {
	if i := s.index(name); i >= 0 {
		return s.doc.Fonts[i].Value, nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrValueNotFound)
}

func (s *FileStore) SetValue(name, value string) error {
	if i := s.index(name); i >= 0 {
		s.doc.Fonts[i].Value = value
	} else {
		s.doc.Fonts = append(s.doc.Fonts, fileEntry{Name: name, Value: value})
	}
	return s.save()
}

func (s *FileStore) DeleteValue(name string) error {
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("%s: %w", name, ErrValueNotFound)
	}
	s.doc.Fonts = append(s.doc.Fonts[:i], s.doc.Fonts[i+1:]...)
	return s.save()
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) index(name string) int {
	for i, e := range s.doc.Fonts {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}

// save replaces the store file through a rename so readers never see a
// partially written document.
func (s *FileStore) save() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("encoding registration store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".fonts-*.yaml")
	if err != nil {
		return fmt.Errorf("writing registration store: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing registration store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing registration store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing registration store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing registration store: %w", err)
	}
	return nil
}
