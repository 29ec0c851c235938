package storage

import (
	"context"
	"sync"
)

const defaultMemoryBaseURL = "http://localhost:8080/uploads"

type Object struct {
	Data        []byte
	ContentType string
}

// MemoryGateway keeps objects in process memory.
type MemoryGateway struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object
}

func NewMemory(baseURL string) *MemoryGateway {
	if baseURL == "" {
		baseURL = defaultMemoryBaseURL
	}
	return &MemoryGateway{baseURL: baseURL, objects: make(map[string]Object)}
}

func (g *MemoryGateway) UploadPublic(_ context.Context, data []byte, key string, contentType string) (*UploadResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return &UploadResult{URL: publicURL(g.baseURL, key), Key: key}, nil
}

func (g *MemoryGateway) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(g.objects, key)
	return nil
}

func (g *MemoryGateway) KeyFromURL(url string) (string, bool) {
	return keyFromURL(g.baseURL, url)
}

// Get returns a stored object.
func (g *MemoryGateway) Get(key string) (Object, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	obj, ok := g.objects[key]
	return obj, ok
}
