package cache

import (
	"container/heap"
	"container/list"
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// memoryStore is the bounded in-process backend. Values are held by
// reference (no serialization), so retrieval is O(1) and typing is a
// runtime concern. Capacity is enforced with least-recently-used eviction;
// finite TTLs are enforced by a background scheduler that removes entries
// as they lapse.
type memoryStore struct {
	prefix     string
	maxEntries int
	defaultTTL time.Duration
	log        *slog.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	sched *evictionScheduler
}

type memoryEntry struct {
	key       string
	value     any
	expiresAt time.Time // zero = no expiry
	epoch     uint64    // bumped on every write/renew; stale scheduler jobs no-op
}

func newMemoryStore(cfg Config, log *slog.Logger) (*memoryStore, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &memoryStore{
		prefix:     namespacePrefix(cfg.Namespace),
		maxEntries: cfg.Memory.MaxEntries,
		defaultTTL: cfg.Memory.DefaultTTL,
		log:        log,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
	s.sched = newEvictionScheduler(cfg.Memory.EvictionWorkers, s.expire)
	return s, nil
}

func (s *memoryStore) Get(_ context.Context, key string, dest any) (bool, error) {
	full := s.prefix + key

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(full)
	if !ok {
		return false, nil
	}
	if !assign(dest, entry.value) {
		s.log.Warn("cache value type mismatch", "key", full,
			"stored", reflect.TypeOf(entry.value).String())
		return false, nil
	}
	return true, nil
}

func (s *memoryStore) GetOrLoad(_ context.Context, key string, dest any, load Loader) (bool, error) {
	full := s.prefix + key

	s.mu.Lock()
	if entry, ok := s.lookup(full); ok {
		if assign(dest, entry.value) {
			s.mu.Unlock()
			return true, nil
		}
		// Mistyped entry: evict so the reload below repopulates it.
		s.log.Warn("cache value type mismatch, reloading", "key", full)
		s.remove(full)
	}
	s.mu.Unlock()

	// The loader runs outside the lock; concurrent misses may race here
	// and both load. Last write wins.
	value, err := load()
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}
	s.put(full, value, s.defaultTTL)
	return assign(dest, value), nil
}

func (s *memoryStore) Put(_ context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.put(s.prefix+key, value, ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) (bool, error) {
	full := s.prefix + key
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.lookup(full)
	s.remove(full)
	return existed, nil
}

func (s *memoryStore) DeleteAll(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.remove(s.prefix + key)
	}
	return nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*list.Element)
	s.order.Init()
	return nil
}

func (s *memoryStore) Renew(_ context.Context, key string, ttl time.Duration) (bool, error) {
	full := s.prefix + key

	s.mu.Lock()
	entry, ok := s.lookup(full)
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	expiresAt := time.Now().Add(ttl)
	entry.expiresAt = expiresAt
	entry.epoch++
	epoch := entry.epoch
	s.mu.Unlock()

	s.sched.schedule(full, epoch, expiresAt)
	return true, nil
}

func (s *memoryStore) Close() error {
	s.sched.stop()
	return nil
}

// put writes an already-prefixed key, evicting from the LRU tail when the
// entry count overflows, and schedules TTL removal for finite TTLs.
func (s *memoryStore) put(full string, value any, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	var epoch uint64
	if elem, ok := s.entries[full]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		entry.epoch++
		epoch = entry.epoch
		s.order.MoveToFront(elem)
	} else {
		entry := &memoryEntry{key: full, value: value, expiresAt: expiresAt, epoch: 1}
		s.entries[full] = s.order.PushFront(entry)
		epoch = 1
		for len(s.entries) > s.maxEntries {
			oldest := s.order.Back()
			if oldest == nil {
				break
			}
			s.remove(oldest.Value.(*memoryEntry).key)
		}
	}
	s.mu.Unlock()

	if !expiresAt.IsZero() {
		s.sched.schedule(full, epoch, expiresAt)
	}
}

// lookup returns a live entry by prefixed key, treating lapsed-but-not-yet
// evicted entries as absent. Callers hold s.mu.
func (s *memoryStore) lookup(full string) (*memoryEntry, bool) {
	elem, ok := s.entries[full]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && !time.Now().Before(entry.expiresAt) {
		s.remove(full)
		return nil, false
	}
	s.order.MoveToFront(elem)
	return entry, true
}

// remove deletes a prefixed key if present. Callers hold s.mu.
func (s *memoryStore) remove(full string) {
	if elem, ok := s.entries[full]; ok {
		s.order.Remove(elem)
		delete(s.entries, full)
	}
}

// expire is the scheduler callback. The epoch guard makes rescheduled and
// rewritten entries immune to stale jobs.
func (s *memoryStore) expire(full string, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.entries[full]
	if !ok {
		return
	}
	if elem.Value.(*memoryEntry).epoch != epoch {
		return
	}
	s.remove(full)
}

// assign copies value into dest when dest is a pointer whose element type
// can hold value.
func assign(dest, value any) bool {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	target := rv.Elem()
	sv := reflect.ValueOf(value)
	if !sv.IsValid() || !sv.Type().AssignableTo(target.Type()) {
		return false
	}
	target.Set(sv)
	return true
}

// evictionScheduler runs TTL removals on a small fixed-size worker pool.
// Jobs are ordered in a min-heap by due time; a single dispatcher feeds
// due jobs to the workers. Cancellation is lazy: superseded jobs are
// filtered by the store's epoch check rather than removed from the heap.
type evictionScheduler struct {
	mu       sync.Mutex
	queue    expiryQueue
	wake     chan struct{}
	jobs     chan expiryJob
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type expiryJob struct {
	key   string
	epoch uint64
	due   time.Time
}

func newEvictionScheduler(workers int, evict func(key string, epoch uint64)) *evictionScheduler {
	sched := &evictionScheduler{
		wake: make(chan struct{}, 1),
		jobs: make(chan expiryJob),
		done: make(chan struct{}),
	}
	heap.Init(&sched.queue)

	sched.wg.Add(1)
	go sched.dispatch()

	for i := 0; i < workers; i++ {
		sched.wg.Add(1)
		go func() {
			defer sched.wg.Done()
			for job := range sched.jobs {
				evict(job.key, job.epoch)
			}
		}()
	}
	return sched
}

func (s *evictionScheduler) schedule(key string, epoch uint64, due time.Time) {
	s.mu.Lock()
	heap.Push(&s.queue, expiryJob{key: key, epoch: epoch, due: due})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// stop is idempotent so a double Close on the store is harmless.
func (s *evictionScheduler) stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *evictionScheduler) dispatch() {
	defer s.wg.Done()
	defer close(s.jobs)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		wait := time.Hour
		now := time.Now()
		for s.queue.Len() > 0 {
			next := s.queue[0]
			if next.due.After(now) {
				wait = next.due.Sub(now)
				break
			}
			heap.Pop(&s.queue)
			s.mu.Unlock()
			select {
			case s.jobs <- next:
			case <-s.done:
				return
			}
			s.mu.Lock()
			now = time.Now()
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

type expiryQueue []expiryJob

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].due.Before(q[j].due) }
func (q expiryQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *expiryQueue) Push(x any) { *q = append(*q, x.(expiryJob)) }

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	*q = old[:n-1]
	return job
}
