package storage

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Uploader for tests and mock-mode runs. It keeps
// artifacts in a map and serves memory:// URLs.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ Uploader = (*Memory)(nil)

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// UploadImage implements Uploader.
func (m *Memory) UploadImage(ctx context.Context, storyID string, sequence int, data []byte) (string, error) {
	return m.put(fmt.Sprintf("story-images/%s/%d.png", storyID, sequence), data)
}

// UploadAudio implements Uploader.
func (m *Memory) UploadAudio(ctx context.Context, storyID string, sequence int, data []byte) (string, error) {
	return m.put(fmt.Sprintf("story-audio/%s/%d.mp3", storyID, sequence), data)
}

func (m *Memory) put(key string, data []byte) (string, error) {
	if err := validatePayload(data); err != nil {
		return "", fmt.Errorf("%s: %d bytes: %w", key, len(data), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return "memory://" + key, nil
}

// Get returns a stored object. Test helper.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of stored objects. Test helper.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
