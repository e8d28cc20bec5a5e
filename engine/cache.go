package engine

import (
	"context"
	"sync"
	"time"

	"earshot/gemini"
	"earshot/log"
)

const (
	// MinCacheChars is the provider's floor for explicit context caching.
	// Smaller contexts go inline on every request instead.
	MinCacheChars = 32000

	cacheTTL = time.Hour
)

// cacheManager runs the remote context-cache lifecycle. A cache entry is
// valid for exactly one model; model switches and context edits drop it.
// Cache failures are absorbed: analysis falls back to inline context and
// the only trace is a warning log and an inactive status.
type cacheManager struct {
	provider gemini.Client
	onStatus func(bool)

	mu    sync.Mutex
	id    string
	model string
	chars int
}

func newCacheManager(provider gemini.Client, onStatus func(bool)) *cacheManager {
	return &cacheManager{provider: provider, onStatus: onStatus}
}

// Refresh replaces the cache entry with one for content under model. Any
// previous entry is invalidated first; the remote side reaps it by TTL.
// Content below the provider minimum deactivates caching without any
// network traffic.
func (m *cacheManager) Refresh(ctx context.Context, content, model string) {
	m.mu.Lock()
	m.id = ""
	m.model = ""
	m.chars = len(content)
	m.mu.Unlock()

	if len(content) < MinCacheChars {
		m.announce(false, model, len(content))
		return
	}

	id, err := m.provider.CreateCache(ctx, model, content, cacheTTL)
	if err != nil {
		log.Warnf("context cache creation failed, falling back to inline context: %v", err)
		m.announce(false, model, len(content))
		return
	}

	m.mu.Lock()
	m.id = id
	m.model = model
	m.mu.Unlock()
	m.announce(true, model, len(content))
}

// OnModelChanged invalidates the entry; a cache handle is only usable
// with the model it was created for.
func (m *cacheManager) OnModelChanged(model string) {
	m.mu.Lock()
	m.id = ""
	m.model = ""
	chars := m.chars
	m.mu.Unlock()
	m.announce(false, model, chars)
}

// ActiveID returns the cache handle if one is live for model, else "".
func (m *cacheManager) ActiveID(model string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != model {
		return ""
	}
	return m.id
}

func (m *cacheManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id != ""
}

func (m *cacheManager) announce(active bool, model string, chars int) {
	log.CacheStatus(active, model, chars)
	if m.onStatus != nil {
		m.onStatus(active)
	}
}
