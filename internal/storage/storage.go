// Package storage defines the blob storage contract used for equipment
// images, with an in-memory driver for tests and local development.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverS3     Driver = "s3"
	DriverMemory Driver = "memory"
)

var (
	// ErrUnsupported is returned when an optional capability is not available.
	ErrUnsupported = errors.New("storage: unsupported operation")
	// ErrNotFound is returned for a missing key.
	ErrNotFound = errors.New("storage: object not found")
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"contentType,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"lastModified"`
}

// Store is a thin S3-like abstraction.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// PresignURL returns a time-limited GET URL, or ErrUnsupported.
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}
