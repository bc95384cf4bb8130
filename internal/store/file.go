//go:build !windows

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is where the pointer store lives unless overridden.
	DefaultPath = "/etc/servicestation/services.yaml"
	// EnvPath overrides DefaultPath.
	EnvPath = "SERVICESTATION_STORE"
)

// FileStore keeps entries in a YAML document that is replaced atomically on
// every write.
type FileStore struct {
	Path string

	mu sync.Mutex
}

type document struct {
	Services map[string]entry `yaml:"services"`
}

type entry struct {
	ConfigFile string `yaml:"config_file"`
}

// Default returns the machine-scoped store for this host.
func Default() Store {
	path := os.Getenv(EnvPath)
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{Path: path}
}

func (s *FileStore) ConfigFile(exePath string) (string, error) {
	if err := checkKey(exePath); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", err
	}
	e, ok := doc.Services[exePath]
	if !ok || e.ConfigFile == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, exePath)
	}
	return e.ConfigFile, nil
}

func (s *FileStore) SetConfigFile(exePath, configFile string) error {
	if err := checkKey(exePath); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc.Services == nil {
		doc.Services = make(map[string]entry)
	}
	doc.Services[exePath] = entry{ConfigFile: configFile}
	return s.write(doc)
}

func (s *FileStore) Remove(exePath string) error {
	if err := checkKey(exePath); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Services[exePath]; !ok {
		return nil
	}
	delete(doc.Services, exePath)
	return s.write(doc)
}

func (s *FileStore) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read store %s: %w", s.Path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode store %s: %w", s.Path, err)
	}
	return doc, nil
}

func (s *FileStore) write(doc document) error {
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := renameio.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("write store %s: %w", s.Path, err)
	}
	return nil
}
