package catalog

import (
	"context"
	"sync"
	"time"
)

// DefaultSearchDelay is the quiet period before a typed query is searched.
const DefaultSearchDelay = 500 * time.Millisecond

// Debouncer runs only the last of a burst of calls, once the burst has been
// quiet for the delay.
type Debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Call schedules fn, replacing any call still waiting.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop drops the waiting call, if any. It reports whether one was dropped.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}

// ResultFunc receives the results of one search.
type ResultFunc func(query string, stickers []Sticker, err error)

// Searcher debounces typed queries into provider searches. A newer query
// cancels the request of an older one, whose results are then discarded.
type Searcher struct {
	provider StickerProvider
	deb      *Debouncer
	onResult ResultFunc

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewSearcher(p StickerProvider, delay time.Duration, onResult ResultFunc) *Searcher {
	return &Searcher{provider: p, deb: NewDebouncer(delay), onResult: onResult}
}

// Input records the current query text.
func (s *Searcher) Input(query string) {
	s.deb.Call(func() { s.run(query) })
}

// Stop drops any pending query and cancels the running request.
func (s *Searcher) Stop() {
	s.deb.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Searcher) run(query string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	stickers, err := s.provider.Search(ctx, query)

	s.mu.Lock()
	current := seq == s.seq
	if current {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()
	if current && s.onResult != nil {
		s.onResult(query, stickers, err)
	}
}
