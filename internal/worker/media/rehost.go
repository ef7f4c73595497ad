package media

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ObjectStore is the subset of the object storage client used for rehosting
type ObjectStore interface {
	PutFile(ctx context.Context, key, path, contentType string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// ObjectRehoster copies media into an object store and returns a presigned URL
type ObjectRehoster struct {
	store  ObjectStore
	prefix string
	expiry time.Duration
}

// NewObjectRehoster creates a rehoster writing under prefix with URLs valid for expiry
func NewObjectRehoster(store ObjectStore, prefix string, expiry time.Duration) *ObjectRehoster {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &ObjectRehoster{store: store, prefix: prefix, expiry: expiry}
}

// Rehost implements Rehoster
func (r *ObjectRehoster) Rehost(ctx context.Context, path, contentType string) (string, func(context.Context) error, error) {
	key := r.prefix + uuid.NewString() + filepath.Ext(path)

	if err := r.store.PutFile(ctx, key, path, contentType); err != nil {
		return "", nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	remove := func(ctx context.Context) error {
		return r.store.Remove(ctx, key)
	}

	publicURL, err := r.store.PresignedGetURL(ctx, key, r.expiry)
	if err != nil {
		_ = remove(ctx)
		return "", nil, err
	}

	return publicURL, remove, nil
}
