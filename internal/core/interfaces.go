// Package core defines the contracts shared by the voicechat components.
package core

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by an ObjectStore when a key is not (or no
// longer) stored.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// ImageFile is a face image as selected by the user, before any processing.
// ContentType is the type declared by the browser, not a sniffed one.
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}
