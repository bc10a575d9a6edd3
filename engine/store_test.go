package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageStoreCreateGetRevoke(t *testing.T) {
	store := NewImageStore("http://example.com/", 0)

	url := store.Create([]byte("png bytes"), PNGContentType)
	assert.True(t, strings.HasPrefix(url, "http://example.com/images/"), url)

	data, contentType, err := store.Get(url)
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)
	assert.Equal(t, PNGContentType, contentType)

	// bare ids work as well as full URLs
	id := url[strings.LastIndex(url, "/")+1:]
	_, _, err = store.Get(id)
	require.NoError(t, err)

	assert.True(t, store.Revoke(url))
	assert.False(t, store.Revoke(url))
	_, _, err = store.Get(url)
	assert.ErrorIs(t, err, ErrHandleNotFound)
}

func TestImageStoreHandlesAreUnique(t *testing.T) {
	store := NewImageStore("", 0)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		url := store.Create([]byte{byte(i)}, PNGContentType)
		assert.False(t, seen[url])
		seen[url] = true
	}
	assert.Equal(t, 100, store.Len())
}

func TestImageStoreUnknownHandles(t *testing.T) {
	store := NewImageStore("", 0)
	for _, handle := range []string{"", "nope", "/images/", "/images/01ARZ3NDEKTSV4RRFFQ69G5FAV"} {
		_, _, err := store.Get(handle)
		assert.ErrorIs(t, err, ErrHandleNotFound, handle)
		assert.False(t, store.Revoke(handle))
	}
}

func TestImageStoreSweep(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewImageStore("", time.Hour)
	store.now = func() time.Time { return now }

	old := store.Create([]byte("old"), PNGContentType)
	now = now.Add(45 * time.Minute)
	fresh := store.Create([]byte("fresh"), PNGContentType)
	now = now.Add(30 * time.Minute)

	assert.Equal(t, 1, store.Sweep())
	_, _, err := store.Get(old)
	assert.ErrorIs(t, err, ErrHandleNotFound)
	_, _, err = store.Get(fresh)
	assert.NoError(t, err)
}

func TestImageStoreSweepWithoutTTL(t *testing.T) {
	store := NewImageStore("", 0)
	store.Create([]byte("kept"), PNGContentType)
	store.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	assert.Equal(t, 0, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestSweepImagesJob(t *testing.T) {
	now := time.Now()
	store := NewImageStore("", time.Minute)
	store.now = func() time.Time { return now }
	store.Create([]byte("a"), PNGContentType)
	now = now.Add(2 * time.Minute)

	sweepImages(store)
	assert.Equal(t, 0, store.Len())
}

func TestInitializeSchedules(t *testing.T) {
	store := NewImageStore("", time.Minute)

	c := InitializeSchedules(store, 5)
	defer c.Stop()
	assert.Len(t, c.Entries(), 1)

	disabled := InitializeSchedules(store, 0)
	assert.Empty(t, disabled.Entries())
}

func TestDefaultConverterExpiresHandles(t *testing.T) {
	converter := DefaultConverter()
	assert.Same(t, converter, DefaultConverter())
	assert.Equal(t, DefaultHandleTTL, converter.Images.ttl)
	require.NotNil(t, defaultSweeper)
	assert.Len(t, defaultSweeper.Entries(), 1)

	// a handle past the TTL goes on the next sweep
	url := converter.Images.Create([]byte("png"), PNGContentType)
	converter.Images.mu.Lock()
	for id, img := range converter.Images.images {
		img.created = img.created.Add(-2 * DefaultHandleTTL)
		converter.Images.images[id] = img
	}
	converter.Images.mu.Unlock()
	sweepImages(converter.Images)
	_, _, err := converter.Images.Get(url)
	assert.ErrorIs(t, err, ErrHandleNotFound)
}
