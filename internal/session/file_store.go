package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stemsi/tricol-console/internal/config"
	"github.com/stemsi/tricol-console/internal/model"
)

// FileStore keeps each slot in its own 0600 file under a private directory.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("session: file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(slot string) string {
	return filepath.Join(s.dir, slot)
}

// Load reads the three slot files.
func (s *FileStore) Load(_ context.Context) (*model.Session, error) {
	values := make(map[string]string, len(config.Slots))
	for _, slot := range config.Slots {
		data, err := os.ReadFile(s.path(slot))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrNoSession
			}
			return nil, fmt.Errorf("%w: read %s: %v", ErrNoSession, slot, err)
		}
		values[slot] = string(data)
	}
	return assemble(values[config.SlotAccessToken], values[config.SlotRefreshToken], values[config.SlotCurrentUser])
}

// Save clears the previous slots first and writes the access token last, so
// an interrupted save leaves a slot missing and loads as "no session".
func (s *FileStore) Save(ctx context.Context, sess *model.Session) error {
	if err := validateForSave(sess); err != nil {
		return err
	}
	user, err := encodeUser(sess.User)
	if err != nil {
		return err
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}

	writes := []struct{ slot, value string }{
		{config.SlotCurrentUser, user},
		{config.SlotRefreshToken, sess.RefreshToken},
		{config.SlotAccessToken, sess.AccessToken},
	}
	for _, w := range writes {
		if err := writeFileAtomic(s.path(w.slot), []byte(w.value)); err != nil {
			return fmt.Errorf("write %s: %w", w.slot, err)
		}
	}
	return nil
}

// Clear removes every slot file.
func (s *FileStore) Clear(_ context.Context) error {
	var errs []error
	for _, slot := range config.Slots {
		if err := os.Remove(s.path(slot)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", slot, err))
		}
	}
	return errors.Join(errs...)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
