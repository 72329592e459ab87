package crawler

import (
	"container/list"
	"sync"
	"time"

	"webharvest/internal/urlutil"
)

// Frontier is the ordered, deduplicated work queue of URLs to visit.
// Tasks come out shallowest depth first, FIFO within a depth. The
// seen-set is updated eagerly on Push, before the task is ever fetched,
// so concurrent discovery of the same URL enqueues it once.
type Frontier struct {
	mu      sync.Mutex
	buckets map[int]*list.List
	depths  []int // sorted depths with non-empty buckets
	seen    map[string]struct{}
	filter  *URLFilter

	maxDepth int
	closed   bool

	enqueued   int
	duplicates int
	rejected   int
}

// NewFrontier creates a frontier bounded by maxDepth with the given
// URL filter. A nil filter admits every well-formed URL.
func NewFrontier(maxDepth int, filter *URLFilter) *Frontier {
	return &Frontier{
		buckets:  make(map[int]*list.List),
		seen:     make(map[string]struct{}),
		filter:   filter,
		maxDepth: maxDepth,
	}
}

// Push adds a URL to the frontier unless it was already seen this
// session, exceeds the maximum depth, or fails the filter checks.
// It returns true when a task was enqueued.
func (f *Frontier) Push(rawURL string, depth int, parent string) bool {
	normalized, err := urlutil.Normalize(rawURL)
	if err != nil {
		return false
	}
	if depth > f.maxDepth {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if f.filter != nil && !f.filter.Allow(normalized) {
		f.rejected++
		return false
	}
	if _, dup := f.seen[normalized]; dup {
		f.duplicates++
		return false
	}
	f.seen[normalized] = struct{}{}

	f.enqueue(&CrawlTask{
		URL:          normalized,
		Depth:        depth,
		ParentURL:    parent,
		DiscoveredAt: time.Now().UTC(),
	})
	return true
}

// Requeue puts a previously popped task back without consulting the
// seen-set. Used once per task when the rate limiter timed out.
func (f *Frontier) Requeue(task *CrawlTask) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	f.enqueue(task)
	return true
}

// Pop returns the next task by depth priority, or false when no
// eligible task remains. An empty frontier does not mean the crawl is
// over while workers are still in flight; the scheduler polls.
func (f *Frontier) Pop() (*CrawlTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.depths) == 0 {
		return nil, false
	}

	depth := f.depths[0]
	bucket := f.buckets[depth]
	front := bucket.Front()
	bucket.Remove(front)
	if bucket.Len() == 0 {
		delete(f.buckets, depth)
		f.depths = f.depths[1:]
	}

	return front.Value.(*CrawlTask), true
}

// Close stops the frontier from accepting pushes and requeues. Pop
// keeps working so already-queued tasks drain.
func (f *Frontier) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Len returns the number of pending tasks.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, b := range f.buckets {
		n += b.Len()
	}
	return n
}

// Seen reports whether a normalized URL has entered the frontier this
// session.
func (f *Frontier) Seen(normalizedURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[normalizedURL]
	return ok
}

// Counters returns enqueued, duplicate-rejected, and filter-rejected
// totals.
func (f *Frontier) Counters() (enqueued, duplicates, rejected int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enqueued, f.duplicates, f.rejected
}

// enqueue must be called with the mutex held.
func (f *Frontier) enqueue(task *CrawlTask) {
	bucket, ok := f.buckets[task.Depth]
	if !ok {
		bucket = list.New()
		f.buckets[task.Depth] = bucket
		f.insertDepth(task.Depth)
	}
	bucket.PushBack(task)
	f.enqueued++
}

func (f *Frontier) insertDepth(depth int) {
	i := 0
	for i < len(f.depths) && f.depths[i] < depth {
		i++
	}
	f.depths = append(f.depths, 0)
	copy(f.depths[i+1:], f.depths[i:])
	f.depths[i] = depth
}
