package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/levenlabs/go-lflag"
	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/types"
)

// FileStore keeps the state as a JSON document in a single file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func configuredFile() *FileStore {
	path := lflag.String("state-file", filepath.Join(os.TempDir(), "pvrelay-state.json"), "Path of the reconciliation state file")

	f := &FileStore{}
	lflag.Do(func() {
		f.path = *path
	})
	return f
}

// Validate checks if the store is properly configured.
func (f *FileStore) Validate() error {
	if f.path == "" {
		return errors.New("state-file is required")
	}
	return nil
}

// LoadState reads the state file. A missing file is not an error.
func (f *FileStore) LoadState(ctx context.Context) (*types.ReconciliationState, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var s types.ReconciliationState
	if err := json.Unmarshal(b, &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal state file", slog.String("path", f.path), slog.Any("error", err))
		return nil, fmt.Errorf("failed to unmarshal state file: %w", err)
	}
	return &s, nil
}

// SaveState writes the state to a temporary file next to the target and
// renames it over the target, so readers never see a partial record.
func (f *FileStore) SaveState(ctx context.Context, state types.ReconciliationState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	// no-op once the rename succeeded
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "saved state", slog.String("path", f.path), slog.String("date", state.Date))
	return nil
}

// Close implements Store.
func (f *FileStore) Close() error {
	return nil
}
