package adblock

import (
	"container/heap"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const (
	topShardCount     = 16
	topMaxPerShard    = 2048
	defaultTopEntries = 10
)

// TopCount is one entry of a top-k listing.
type TopCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// topCounter counts keys across hashed shards. A full shard stops accepting
// new keys but keeps counting the ones it holds.
type topCounter struct {
	shards []*counterShard
}

type counterShard struct {
	mu   sync.RWMutex
	keys map[string]*int64
}

func newTopCounter() *topCounter {
	c := &topCounter{shards: make([]*counterShard, topShardCount)}
	for i := range c.shards {
		c.shards[i] = &counterShard{keys: make(map[string]*int64)}
	}
	return c
}

func (c *topCounter) record(key string) {
	if key == "" {
		return
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	shard := c.shards[h.Sum32()%uint32(len(c.shards))]

	shard.mu.RLock()
	counter, exists := shard.keys[key]
	shard.mu.RUnlock()
	if exists {
		atomic.AddInt64(counter, 1)
		return
	}

	shard.mu.Lock()
	if counter, exists = shard.keys[key]; exists {
		shard.mu.Unlock()
		atomic.AddInt64(counter, 1)
		return
	}
	if len(shard.keys) < topMaxPerShard {
		n := int64(1)
		shard.keys[key] = &n
	}
	shard.mu.Unlock()
}

// top returns the k most counted keys, highest first; ties sort by key.
func (c *topCounter) top(k int) []TopCount {
	if k <= 0 {
		return nil
	}
	h := &topHeap{}
	for _, shard := range c.shards {
		shard.mu.RLock()
		for key, counter := range shard.keys {
			n := atomic.LoadInt64(counter)
			if h.Len() < k {
				heap.Push(h, TopCount{Key: key, Count: n})
				continue
			}
			if min := (*h)[0]; n > min.Count || (n == min.Count && key < min.Key) {
				heap.Pop(h)
				heap.Push(h, TopCount{Key: key, Count: n})
			}
		}
		shard.mu.RUnlock()
	}

	result := make([]TopCount, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(TopCount)
	}
	return result
}

// topHeap is a min-heap; the worst entry sits at the root.
type topHeap []TopCount

func (h topHeap) Len() int { return len(h) }
func (h topHeap) Less(i, j int) bool {
	if h[i].Count != h[j].Count {
		return h[i].Count < h[j].Count
	}
	return h[i].Key > h[j].Key
}
func (h topHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *topHeap) Push(x interface{}) {
	*h = append(*h, x.(TopCount))
}

func (h *topHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
