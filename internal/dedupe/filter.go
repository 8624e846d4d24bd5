// ABOUTME: Size-bounded TTL filter of Matrix event ids
// ABOUTME: FirstSeen admits each id once per window so redelivered events are dropped

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used by the bridge.
const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 10000
)

type entry struct {
	seenAt time.Time
	elem   *list.Element
}

// Filter remembers recently seen keys. Oldest keys are evicted first when
// the filter is full; keys older than the TTL count as unseen.
type Filter struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a filter and starts its background sweep. Non-positive
// arguments take DefaultTTL and DefaultMaxSize.
func New(ttl time.Duration, maxSize int) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	f := &Filter{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go f.sweepLoop(sweepInterval(ttl))
	return f
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// FirstSeen reports whether key is new within the TTL window and records it.
// Check and record happen under one lock.
func (f *Filter) FirstSeen(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if e, ok := f.seen[key]; ok {
		if now.Sub(e.seenAt) < f.ttl {
			return false
		}
		f.order.Remove(e.elem)
		delete(f.seen, key)
	}

	if len(f.seen) >= f.maxSize {
		f.evictOldest()
	}
	f.seen[key] = &entry{seenAt: now, elem: f.order.PushBack(key)}
	return true
}

// Seen reports whether key was recorded within the TTL window without recording it.
func (f *Filter) Seen(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.seen[key]
	return ok && f.now().Sub(e.seenAt) < f.ttl
}

// Len returns the number of remembered keys, expired or not.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *Filter) evictOldest() {
	front := f.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	f.order.Remove(front)
	delete(f.seen, key)
}

func (f *Filter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.sweep()
		case <-f.done:
			return
		}
	}
}

// sweep drops expired keys. Keys are in insertion order, so it stops at the
// first live one.
func (f *Filter) sweep() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for e := f.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		if now.Sub(f.seen[key].seenAt) < f.ttl {
			return
		}
		next := e.Next()
		f.order.Remove(e)
		delete(f.seen, key)
		e = next
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		close(f.done)
		f.closed = true
	}
}
