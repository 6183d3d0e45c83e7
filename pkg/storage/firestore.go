package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/types"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stateDocID = "reconciliation"

// FirestoreStore keeps the state in a single Firestore document at
// installs/<installID>/state/reconciliation.
type FirestoreStore struct {
	client          *firestore.Client
	projectID       string
	database        string
	credentialsFile string
	installID       string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreStore {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	credentialsFile := lflag.String("firestore-credentials-file", "", "Service account JSON file, defaults to application default credentials")
	installID := lflag.String("firestore-install-id", "default", "Document key for this install")

	f := &FirestoreStore{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.credentialsFile = *credentialsFile
		f.installID = *installID

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreStore) Validate() error {
	if f.installID == "" {
		return errors.New("firestore-install-id is required")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreStore) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	var opts []option.ClientOption
	if f.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.credentialsFile))
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreStore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreStore) stateDoc() *firestore.DocumentRef {
	return f.client.Collection("installs").Doc(f.installID).Collection("state").Doc(stateDocID)
}

// LoadState retrieves the state document. A missing document is not an error.
func (f *FirestoreStore) LoadState(ctx context.Context) (*types.ReconciliationState, error) {
	doc, err := f.stateDoc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch state doc: %w", err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "state doc missing json", slog.String("installID", f.installID))
		return nil, fmt.Errorf("state document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("state 'json' field is not a string")
	}

	var s types.ReconciliationState
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal state json", slog.String("installID", f.installID), slog.Any("err", err))
		return nil, fmt.Errorf("failed to unmarshal state json: %w", err)
	}
	return &s, nil
}

// SaveState overwrites the state document. It stores the state as a JSON
// string with the date alongside for inspection in the console.
func (f *FirestoreStore) SaveState(ctx context.Context, state types.ReconciliationState) error {
	jsonBytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = f.stateDoc().Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"date":      state.Date,
		"timestamp": state.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}
