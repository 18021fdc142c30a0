// cache.go - Deduplicated asynchronous loading of sticker rasters.
// Each URL is loaded at most once at a time; results are kept for the life
// of the cache. Failed loads are retried on the next reference.
package assets

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
)

// Status is the load state of one cached URL.
type Status int

const (
	StatusNone Status = iota
	StatusLoading
	StatusLoaded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	}
	return "none"
}

// Loader turns a source string into a decoded image.
type Loader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, src string) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, src string) (image.Image, error) {
	return f(ctx, src)
}

// SettledFunc is called once per finished load, success or failure.
type SettledFunc func(url string, status Status)

type entry struct {
	status Status
	img    image.Image
	err    error
	done   chan struct{}
}

// Cache maps URLs to decoded images.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	loader    Loader
	onSettled SettledFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCache creates a cache backed by loader. onSettled may be nil.
func NewCache(loader Loader, onSettled SettledFunc) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries:   make(map[string]*entry),
		loader:    loader,
		onSettled: onSettled,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// GetOrLoad returns the status of url, starting a load when the URL has never
// been requested or its last load failed.
func (c *Cache) GetOrLoad(url string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getOrLoadLocked(url).status
}

func (c *Cache) getOrLoadLocked(url string) *entry {
	if e, ok := c.entries[url]; ok && e.status != StatusError {
		return e
	}
	e := &entry{status: StatusLoading, done: make(chan struct{})}
	c.entries[url] = e
	c.wg.Add(1)
	go c.load(url, e)
	return e
}

func (c *Cache) load(url string, e *entry) {
	defer c.wg.Done()
	log := logrus.WithField("url", abbreviate(url))

	img, err := c.loader.Load(c.ctx, url)

	c.mu.Lock()
	if err != nil {
		e.status, e.err = StatusError, err
	} else {
		e.status, e.img = StatusLoaded, img
	}
	status := e.status
	c.mu.Unlock()

	if err != nil {
		log.WithError(err).Warn("asset load failed")
	} else {
		log.Debug("asset loaded")
	}
	if c.onSettled != nil {
		c.onSettled(url, status)
	}
	close(e.done)
}

// Lookup returns the cached image and status without starting a load.
func (c *Cache) Lookup(url string) (image.Image, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return nil, StatusNone
	}
	return e.img, e.status
}

// Await loads url if needed and blocks until its load settles.
func (c *Cache) Await(ctx context.Context, url string) (image.Image, error) {
	c.mu.Lock()
	e := c.getOrLoadLocked(url)
	c.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, fmt.Errorf("load %s: %w", abbreviate(url), e.err)
	}
	return e.img, nil
}

// Wait blocks until every load started before the call has settled and its
// onSettled callback has returned.
func (c *Cache) Wait(ctx context.Context) error {
	c.mu.Lock()
	pending := make([]chan struct{}, 0, len(c.entries))
	for _, e := range c.entries {
		pending = append(pending, e.done)
	}
	c.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Len returns the number of distinct URLs ever requested.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels in-flight loads and waits for their goroutines. It must not
// be called from an onSettled callback.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// abbreviate keeps data URIs out of log lines.
func abbreviate(url string) string {
	if len(url) > 64 {
		return url[:61] + "..."
	}
	return url
}
