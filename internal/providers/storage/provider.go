// Package storage archives rendered invoices to object storage.
package storage

import "context"

// Provider stores one object and returns its remote location.
type Provider interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Name() string
}

// NoOpProvider is used when no bucket is configured. It stores nothing.
type NoOpProvider struct{}

func (NoOpProvider) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", nil
}

func (NoOpProvider) Name() string {
	return "none"
}
