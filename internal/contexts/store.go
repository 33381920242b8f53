// File: internal/contexts/store.go
package contexts

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Placeholder is written to a freshly created context file.
const Placeholder = "# Write examples of your tone and replies for this contact.\n"

// DefaultDir is the contexts directory relative to the working directory.
const DefaultDir = "contexts"

// Store reads and writes one free-text persona file per contact.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewStore creates a Store rooted at dir on the given filesystem. A leading "~"
// in dir is expanded to the user's home directory.
func NewStore(fsys afero.Fs, dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand contexts dir %q: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{fs: fsys, dir: expanded, logger: logger.Named("contexts")}, nil
}

// NewOSStore creates a Store backed by the operating system filesystem.
func NewOSStore(dir string, logger *zap.Logger) (*Store, error) {
	return NewStore(afero.NewOsFs(), dir, logger)
}

// Dir returns the expanded contexts directory.
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns explicitName when set, otherwise "<contact>.txt".
func FileName(contact, explicitName string) string {
	if explicitName != "" {
		return explicitName
	}
	return contact + ".txt"
}

// ResolvePath returns the context file path for contact and makes sure the
// contexts directory exists.
func (s *Store) ResolvePath(contact, explicitName string) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create contexts dir %s: %w", s.dir, err)
	}
	return filepath.Join(s.dir, FileName(contact, explicitName)), nil
}

// Load returns the context text for contact, or "" when there is none.
// Read failures are logged and treated as an empty context.
func (s *Store) Load(contact, explicitName string) string {
	path, err := s.ResolvePath(contact, explicitName)
	if err != nil {
		s.logger.Warn("Could not resolve context file; using empty context.", zap.Error(err))
		return ""
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Could not read context file; using empty context.", zap.String("path", path), zap.Error(err))
		}
		return ""
	}
	return string(data)
}

// EnsureExists creates the context file with the placeholder comment when it
// is missing. An existing file is never touched.
func (s *Store) EnsureExists(contact, explicitName string) (string, error) {
	path, err := s.ResolvePath(contact, explicitName)
	if err != nil {
		return "", err
	}

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to stat context file %s: %w", path, err)
	}
	if exists {
		return path, nil
	}

	if err := afero.WriteFile(s.fs, path, []byte(Placeholder), 0o644); err != nil {
		return "", fmt.Errorf("failed to create context file %s: %w", path, err)
	}
	s.logger.Info("Created context file.", zap.String("path", path))
	return path, nil
}
