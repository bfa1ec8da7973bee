// Package store provides the durable state for the resident workflow
// session. Exactly two keys survive the session: the user's model image
// (as a data URI string) and the generation backend credential. Absence
// of either key is a valid initial state: the workflow starts Empty with
// no credential configured.
//
// Both keys are written synchronously with their in-memory counterpart on
// every successful mutation and read once at control-surface startup.
package store

import "context"

// Store is the persistence interface for the two durable keys. Get
// methods return "" when the key is absent.
type Store interface {
	// ModelImage returns the persisted model image data URI.
	ModelImage(ctx context.Context) (string, error)

	// SaveModelImage persists the model image data URI.
	SaveModelImage(ctx context.Context, dataURI string) error

	// ClearModelImage removes the persisted model image.
	ClearModelImage(ctx context.Context) error

	// APIKey returns the persisted backend credential.
	APIKey(ctx context.Context) (string, error)

	// SaveAPIKey persists the backend credential.
	SaveAPIKey(ctx context.Context, key string) error

	// Close releases the underlying storage.
	Close() error
}
