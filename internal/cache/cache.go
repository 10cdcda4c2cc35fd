// Package cache stores recognition results keyed by image content and OCR settings,
// so that the same image is never recognized twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Entry is a cached recognition result
type Entry struct {
	Text       string
	Confidence int
	Format     string
	Languages  string
}

type Cache interface {
	// Get returns nil and no error if key is not cached.
	Get(key string) (*Entry, error)
	Save(key string, e Entry) error
}

// Key derives the cache key from the image and every setting that influences the recognition result.
func Key(img []byte, settings ...string) string {
	h := sha256.New()
	h.Write(img)
	for _, s := range settings {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type NopCache struct{}

func (c *NopCache) Get(key string) (*Entry, error) {
	return nil, nil
}

func (c *NopCache) Save(key string, e Entry) error {
	return nil
}
