// Package blob implements the remote collection store on an object store:
// every pushed payload becomes one immutable JSON object.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	blobcore "herdsync/internal/blob/core"
	"herdsync/pkg/domain"
)

var _ domain.RemoteStore = (*Store)(nil)

const contentType = "application/json"

// Store pushes into objects keyed <collection>/<unix-nanos>-<uuid>.json.
type Store struct {
	objects blobcore.Store
	now     func() time.Time
}

// New wraps an object store.
func New(objects blobcore.Store) *Store {
	return &Store{objects: objects, now: time.Now}
}

// Push writes payload as a new object and returns the object's id segment.
func (s *Store) Push(ctx context.Context, collection domain.Collection, payload json.RawMessage) (string, error) {
	id := fmt.Sprintf("%d-%s", s.now().UTC().UnixNano(), uuid.NewString())
	key := objectKey(collection, id)
	_, err := s.objects.Put(ctx, key, bytes.NewReader(payload), blobcore.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"collection": string(collection)},
	})
	if err != nil {
		return "", fmt.Errorf("push %s: %w", collection, err)
	}
	return id, nil
}

// Fetch reads back one pushed payload.
func (s *Store) Fetch(ctx context.Context, collection domain.Collection, id string) (json.RawMessage, error) {
	_, rc, err := s.objects.Get(ctx, objectKey(collection, id))
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", collection, id, err)
	}
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	return body, nil
}

// IDs lists the ids stored under collection, oldest first.
func (s *Store) IDs(ctx context.Context, collection domain.Collection) ([]string, error) {
	prefix := string(collection) + "/"
	infos, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Key, prefix)
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// IsNotFound reports whether err came from a missing object.
func IsNotFound(err error) bool { return errors.Is(err, blobcore.ErrNotFound) }

func objectKey(collection domain.Collection, id string) string {
	return string(collection) + "/" + id + ".json"
}
