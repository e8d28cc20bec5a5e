package gemini

import (
	"context"
	"sync"
	"time"
)

// Fake is a scriptable Client for tests: fixed cache handle or error,
// fixed stream chunks with an optional terminal error, and call recording.
type Fake struct {
	CacheID     string
	CacheErr    error
	Chunks      []string
	StreamErr   error // emitted as a terminal event after Chunks
	GenerateErr error // fails the call before any stream exists

	mu               sync.Mutex
	cacheCalls       int
	generateCalls    int
	lastCacheModel   string
	lastCacheContent string
	lastRequest      GenerateRequest
}

func NewFake() *Fake {
	return &Fake{CacheID: "cachedContents/fake-1"}
}

func (f *Fake) CreateCache(_ context.Context, model, content string, _ time.Duration) (string, error) {
	f.mu.Lock()
	f.cacheCalls++
	f.lastCacheModel = model
	f.lastCacheContent = content
	f.mu.Unlock()
	if f.CacheErr != nil {
		return "", f.CacheErr
	}
	return f.CacheID, nil
}

func (f *Fake) Generate(_ context.Context, req GenerateRequest) (<-chan StreamEvent, error) {
	f.mu.Lock()
	f.generateCalls++
	f.lastRequest = req
	f.mu.Unlock()

	if f.GenerateErr != nil {
		return nil, f.GenerateErr
	}

	out := make(chan StreamEvent, len(f.Chunks)+1)
	go func() {
		defer close(out)
		for _, text := range f.Chunks {
			out <- StreamEvent{Text: text}
		}
		if f.StreamErr != nil {
			out <- StreamEvent{Err: f.StreamErr}
		}
	}()
	return out, nil
}

func (f *Fake) CacheCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cacheCalls
}

func (f *Fake) GenerateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls
}

func (f *Fake) LastCache() (model, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCacheModel, f.lastCacheContent
}

func (f *Fake) LastRequest() GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRequest
}
