package script

import "sync"

// CorpusCache stores generated corpus text per scene.
type CorpusCache interface {
	Get(scene string) (string, bool)
	Set(scene, corpus string)
}

// MemoryCorpusCache is a process-local CorpusCache. Entries never expire.
type MemoryCorpusCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

var _ CorpusCache = (*MemoryCorpusCache)(nil)

// NewMemoryCorpusCache creates an empty cache.
func NewMemoryCorpusCache() *MemoryCorpusCache {
	return &MemoryCorpusCache{entries: make(map[string]string)}
}

func (c *MemoryCorpusCache) Get(scene string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[scene]
	return v, ok
}

func (c *MemoryCorpusCache) Set(scene, corpus string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scene] = corpus
}
