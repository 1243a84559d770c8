// Package objectstore provides the blob stores that hold face image previews:
// a NATS JetStream object store and an in-memory cache.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerContentType = "Content-Type"
	metadataContent   = "content"
	previewContent    = "face-preview"
)

// NatsObjectStore implements the core.ObjectStore interface using NATS JetStream.
type NatsObjectStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	store            nats.ObjectStore
}

// NewNats creates or binds the preview bucket. A zero ttl keeps objects until
// they are deleted.
func NewNats(jetstreamContext nats.JetStreamContext, bucketName string, ttl time.Duration) (*NatsObjectStore, error) {
	store, err := openPreviewBucket(jetstreamContext, previewBucketConfig(bucketName, ttl))
	if err != nil {
		return nil, err
	}

	return &NatsObjectStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		store:            store,
	}, nil
}

// previewBucketConfig keeps previews in memory on a single replica; they are
// cheap to regenerate and tied to live sessions.
func previewBucketConfig(bucketName string, ttl time.Duration) *nats.ObjectStoreConfig {
	return &nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: "voicechat face image previews",
		TTL:         ttl,
		MaxBytes:    0,
		Storage:     nats.MemoryStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    map[string]string{metadataContent: previewContent},
		Compression: false,
	}
}

func openPreviewBucket(jetstreamContext nats.JetStreamContext, cfg *nats.ObjectStoreConfig) (nats.ObjectStore, error) {
	store, createErr := jetstreamContext.CreateObjectStore(cfg)
	if createErr == nil {
		return store, nil
	}

	exists := errors.Is(createErr, jetstream.ErrBucketExists) || errors.Is(createErr, nats.ErrStreamNameAlreadyInUse)
	if !exists {
		return nil, fmt.Errorf("failed to create preview bucket '%s': %w", cfg.Bucket, createErr)
	}

	store, bindErr := jetstreamContext.ObjectStore(cfg.Bucket)
	if bindErr != nil {
		return nil, fmt.Errorf("failed to bind preview bucket '%s': %w", cfg.Bucket, bindErr)
	}

	return store, nil
}

// Download retrieves an object from the NATS object store.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: '%s'", ErrObjectNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves an object to the NATS object store.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	reader := bytes.NewReader(data)

	headers := nats.Header{}
	headers.Set(headerContentType, http.DetectContentType(data))

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     headers,
		Metadata:    map[string]string{metadataContent: previewContent},
		Opts:        nil,
	}, reader)
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Delete removes an object from the NATS object store. Deleting a missing
// object is not an error.
func (n *NatsObjectStore) Delete(_ context.Context, key string) error {
	err := n.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}
