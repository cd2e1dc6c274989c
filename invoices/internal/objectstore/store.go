// Package objectstore holds uploaded invoice documents until they are
// ingested. It also issues the pre-authorized write targets handed to
// clients and produces the completion events that drive ingestion.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrObjectNotFound is returned by Read for absent keys.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Write when the key was already written.
	ErrObjectExists = errors.New("object already exists")
	// ErrInvalidKey rejects keys that cannot name a single object.
	ErrInvalidKey = errors.New("invalid object key")
)

// Store reads, writes and deletes objects by key.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	// Write stores data under key once; a second write returns ErrObjectExists.
	Write(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Presigner issues a URL a client may PUT exactly one object to.
type Presigner interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ValidateKey checks that key is a single flat object name.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case len(key) > 256:
		return fmt.Errorf("%w: too long", ErrInvalidKey)
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
