package audio

import "sync"

// FakeContext serves synthetic capture devices for tests. Acquisition
// behavior is configurable per kind; every handed-out capture is recorded
// so tests can assert on resource release.
type FakeContext struct {
	SystemTracks int // monitor sources available; 0 makes SystemAudio fail
	Deny         map[Kind]bool
	Unsupported  map[Kind]bool

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext() *FakeContext {
	return &FakeContext{
		SystemTracks: 1,
		Deny:         map[Kind]bool{},
		Unsupported:  map[Kind]bool{},
	}
}

func (f *FakeContext) Devices(kind Kind) ([]DeviceInfo, error) {
	if kind == SystemAudio {
		var out []DeviceInfo
		for i := 0; i < f.SystemTracks; i++ {
			out = append(out, DeviceInfo{ID: "fake-monitor", Name: "Fake Monitor"})
		}
		return out, nil
	}
	return []DeviceInfo{{ID: "fake-mic", Name: "Fake Microphone"}}, nil
}

func (f *FakeContext) NewCapture(kind Kind, _ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.Unsupported[kind] {
		return nil, ErrUnsupported
	}
	if f.Deny[kind] {
		return nil, ErrPermissionDenied
	}
	if kind == SystemAudio && f.SystemTracks == 0 {
		return nil, ErrNoSystemTrack
	}
	c := &FakeCapture{Kind: kind}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

func (f *FakeContext) Close() {}

// Captures returns every device handed out so far, in acquisition order.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeCapture, len(f.captures))
	copy(out, f.captures)
	return out
}

type FakeCapture struct {
	Kind Kind

	mu      sync.Mutex
	cb      DataCallback
	started bool
	closed  bool
}

func (c *FakeCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
}

func (c *FakeCapture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

// Feed pushes PCM through the registered callback, as a platform backend
// would from its capture thread.
func (c *FakeCapture) Feed(pcm []byte) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(pcm, uint32(len(pcm)/2))
	}
}

func (c *FakeCapture) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *FakeCapture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
