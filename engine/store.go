package engine

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ImagePathPrefix is where display handles are served from
const ImagePathPrefix = "/images/"

// ErrHandleNotFound is returned for unknown or revoked handles
var ErrHandleNotFound = errors.New("image handle not found")

type storedImage struct {
	data        []byte
	contentType string
	created     time.Time
}

// ImageStore keeps encoded images in memory behind dereferenceable URLs until they are
// revoked or expire
type ImageStore struct {
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	images map[ulid.ULID]storedImage
}

// NewImageStore creates a store whose URLs start with baseURL. A ttl of zero keeps
// images until they are revoked.
func NewImageStore(baseURL string, ttl time.Duration) *ImageStore {
	return &ImageStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
		images:  make(map[ulid.ULID]storedImage),
	}
}

// Create registers data and returns its URL
func (s *ImageStore) Create(data []byte, contentType string) string {
	now := s.now()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())

	s.mu.Lock()
	s.images[id] = storedImage{data: data, contentType: contentType, created: now}
	s.mu.Unlock()

	return s.baseURL + ImagePathPrefix + id.String()
}

// Get dereferences a handle given as a URL or a bare id
func (s *ImageStore) Get(handle string) ([]byte, string, error) {
	id, err := parseHandle(handle)
	if err != nil {
		return nil, "", err
	}
	s.mu.RLock()
	img, ok := s.images[id]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrHandleNotFound
	}
	return img.data, img.contentType, nil
}

// Revoke drops a handle. Revoking an unknown handle is not an error.
func (s *ImageStore) Revoke(handle string) bool {
	id, err := parseHandle(handle)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[id]; !ok {
		return false
	}
	delete(s.images, id)
	return true
}

// Sweep removes images older than the TTL and returns how many went
func (s *ImageStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, img := range s.images {
		if img.created.Before(cutoff) {
			delete(s.images, id)
			removed++
		}
	}
	return removed
}

// Len is the number of live handles
func (s *ImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

func parseHandle(handle string) (ulid.ULID, error) {
	if i := strings.LastIndex(handle, ImagePathPrefix); i >= 0 {
		handle = handle[i+len(ImagePathPrefix):]
	}
	id, err := ulid.Parse(handle)
	if err != nil {
		return ulid.ULID{}, ErrHandleNotFound
	}
	return id, nil
}
