package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Retrieve for a missing archive entry
var ErrNotFound = errors.New("archive entry not found")

// StorageInterface defines the contract for archiving outcome log digests
type StorageInterface interface {
	Store(ctx context.Context, filename string, data []byte) error
	Retrieve(ctx context.Context, filename string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, filename string) error
}
