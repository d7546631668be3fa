package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("snapshot not found")

// Backend is a key-value store for serialized cart snapshots.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Ping(ctx context.Context) error
	Close() error
}
