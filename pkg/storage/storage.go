// Package storage defines the resource-storage collaborator invoked after a
// request passes access-token validation.
package storage

import (
	"context"
	"io"
)

// Backend is the storage contract. Paths are the resource paths of validated
// requests, relative to the storage realm.
type Backend interface {
	Read(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, body io.Reader) error
	Create(ctx context.Context, path string, body io.Reader) error
	Append(ctx context.Context, path string, body io.Reader) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}
