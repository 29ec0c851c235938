// Package storage uploads public files such as organization logos.
package storage

import (
	"context"
	"errors"
	"strings"
)

var ErrObjectNotFound = errors.New("object_not_found")

type UploadResult struct {
	URL string
	Key string
}

// FileGateway stores publicly readable objects.
type FileGateway interface {
	UploadPublic(ctx context.Context, data []byte, key string, contentType string) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL recovers the object key of a URL returned by UploadPublic.
	KeyFromURL(url string) (string, bool)
}

// publicURL joins base and key with exactly one slash.
func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

func keyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if base == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}
