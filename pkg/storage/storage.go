// Package storage uploads rendered scene artifacts (illustrations and
// narration audio) to a public blob store and hands back the URL that ends
// up on the scene row.
package storage

import (
	"context"
	"errors"
)

// minPayloadBytes guards against persisting degenerate artifacts. A real
// render or narration is never this small.
const minPayloadBytes = 100

var (
	// ErrNotWritable means the store rejected the write: bad credentials,
	// missing bucket, or revoked permissions.
	ErrNotWritable = errors.New("blob store is not writable")

	// ErrInvalidPayload means the artifact bytes are degenerate and must
	// not be persisted.
	ErrInvalidPayload = errors.New("invalid artifact payload")
)

// Uploader persists scene artifacts. Implementations must be idempotent:
// re-uploading the same story/sequence pair overwrites and returns the same
// URL.
type Uploader interface {
	// UploadImage stores PNG bytes for a scene and returns the public URL.
	UploadImage(ctx context.Context, storyID string, sequence int, data []byte) (string, error)

	// UploadAudio stores MP3 bytes for a scene and returns the public URL.
	UploadAudio(ctx context.Context, storyID string, sequence int, data []byte) (string, error)
}

// validatePayload rejects empty or suspiciously small artifacts.
func validatePayload(data []byte) error {
	if len(data) < minPayloadBytes {
		return ErrInvalidPayload
	}
	return nil
}
