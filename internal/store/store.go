package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
)

// Store is a keyed JSON document store partitioned by collection.
// Implementations do not lock records; concurrent updates are last-write-wins.
type Store interface {
	// Create stores data under id, failing with ErrExists if the record exists
	Create(ctx context.Context, collection, id string, data []byte) error
	// Read returns the stored document or ErrNotFound
	Read(ctx context.Context, collection, id string) ([]byte, error)
	// Update replaces an existing document, failing with ErrNotFound if absent
	Update(ctx context.Context, collection, id string, data []byte) error
	// Delete removes a document, failing with ErrNotFound if absent
	Delete(ctx context.Context, collection, id string) error
	// List returns the ids of all documents in a collection
	List(ctx context.Context, collection string) ([]string, error)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validateKey rejects collection names and ids that could escape their namespace
func validateKey(collection, id string) error {
	if !keyPattern.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	if id != "" && !keyPattern.MatchString(id) {
		return fmt.Errorf("invalid record id %q", id)
	}
	return nil
}
