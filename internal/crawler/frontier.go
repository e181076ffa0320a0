package crawler

import "sync"

// Frontier is the queue of URLs discovered but not yet fetched. It
// keeps a visited set keyed by normalized URL so reciprocal links
// cannot re-enter the queue, and it tracks in-flight work: the crawl
// is complete exactly when the queue is empty AND no unit of work is
// outstanding, at which point the frontier closes itself.
//
// All methods are safe for concurrent use.
type Frontier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	seen    map[string]struct{}
	pending int
	closed  bool
}

// NewFrontier returns an empty, open frontier.
func NewFrontier() *Frontier {
	f := &Frontier{seen: make(map[string]struct{})}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Add normalizes rawURL and appends it at the tail unless it was seen
// before. It reports whether the URL was accepted; a malformed URL is
// rejected with an error and does not enter the visited set.
func (f *Frontier) Add(rawURL string) (bool, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, nil
	}
	if _, ok := f.seen[normalized]; ok {
		return false, nil
	}
	f.seen[normalized] = struct{}{}
	f.queue = append(f.queue, normalized)
	f.pending++
	f.cond.Signal()
	return true, nil
}

// Next removes the head of the queue, blocking until a URL is
// available or the frontier closes. The second return value is false
// once the frontier is closed and drained.
func (f *Frontier) Next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queue) == 0 && !f.closed {
		f.cond.Wait()
	}
	if len(f.queue) == 0 {
		return "", false
	}
	head := f.queue[0]
	f.queue = f.queue[1:]
	return head, true
}

// Done marks one unit of work complete. It must be called exactly once
// per URL returned by Next, after any discovered URLs have been added.
// When nothing remains queued or in flight the frontier closes and all
// blocked Next callers return.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending--
	if f.pending <= 0 && !f.closed {
		f.closed = true
		f.cond.Broadcast()
	}
}

// Close aborts the frontier: queued URLs are discarded and blocked
// Next callers return immediately. Used on the fail-fast path.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.queue = nil
	f.cond.Broadcast()
}

// Len reports the number of queued (not yet dispatched) URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
