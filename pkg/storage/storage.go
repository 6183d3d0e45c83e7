package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/pvrelay/pvrelay/pkg/types"
)

// ErrUnknownProvider is returned for an unsupported storage-provider value.
var ErrUnknownProvider = errors.New("unknown storage provider")

// Store persists the single reconciliation record of this install.
type Store interface {
	// LoadState returns the stored state, or nil when nothing has been stored
	// yet.
	LoadState(ctx context.Context) (*types.ReconciliationState, error)

	// SaveState replaces the stored state wholesale.
	SaveState(ctx context.Context, state types.ReconciliationState) error

	// Lifecycle
	Close() error
}

// Configured sets up the Store provider based on flags.
func Configured() Store {
	provider := lflag.String("storage-provider", "file", "Storage provider to use (available: file, firestore)")

	var p struct{ Store }

	file := configuredFile()
	fs := configuredFirestore()

	lflag.Do(func() {
		s, err := open(context.Background(), *provider, file, fs)
		if err != nil {
			panic(fmt.Sprintf("storage init failed: %v", err))
		}
		p.Store = s
	})

	return &p
}

func open(ctx context.Context, provider string, file *FileStore, fs *FirestoreStore) (Store, error) {
	switch provider {
	case "file":
		if err := file.Validate(); err != nil {
			return nil, fmt.Errorf("file validation failed: %w", err)
		}
		return file, nil
	case "firestore":
		if err := fs.Validate(); err != nil {
			return nil, fmt.Errorf("firestore validation failed: %w", err)
		}
		if err := fs.Init(ctx); err != nil {
			return nil, fmt.Errorf("firestore init failed: %w", err)
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}
