// Package buffer holds the audio segments of one capture session: an
// append-only archive that owns every segment produced, plus a bounded
// rolling window referencing the most recent segments by handle. Both
// containers share the same underlying bytes; eviction from the window
// never frees archived data.
package buffer

import "sync"

// Segment is one fixed-interval unit of captured audio. The first segment
// of a session carries the container framing (Header=true) required to
// decode any subset of later segments. Immutable once appended.
type Segment struct {
	Index  int
	Bytes  []byte
	Header bool
}

// Archive is the full-session store. Append-only for the lifetime of a
// session; cleared only by Reset (session wipe or new session).
type Archive struct {
	mu   sync.RWMutex
	segs []Segment
	size int64
}

func NewArchive() *Archive {
	return &Archive{}
}

// Append stores the segment and returns its handle for window references.
func (a *Archive) Append(seg Segment) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segs = append(a.segs, seg)
	a.size += int64(len(seg.Bytes))
	return len(a.segs) - 1
}

func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.segs)
}

// ByteSize reports the total payload size across all segments.
func (a *Archive) ByteSize() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

func (a *Archive) Get(handle int) (Segment, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if handle < 0 || handle >= len(a.segs) {
		return Segment{}, false
	}
	return a.segs[handle], true
}

// Snapshot returns the current contents in append order. Segment bytes are
// shared, not copied; segments are immutable so concurrent appends by the
// producer never disturb a snapshot.
func (a *Archive) Snapshot() []Segment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Segment, len(a.segs))
	copy(out, a.segs)
	return out
}

func (a *Archive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segs = nil
	a.size = 0
}

// Rolling is the sliding window over an Archive: at most Window segments,
// FIFO-evicted from the front on overflow.
type Rolling struct {
	mu      sync.Mutex
	arena   *Archive
	handles []int
	window  int
}

func NewRolling(arena *Archive, window int) *Rolling {
	if window < 1 {
		window = 1
	}
	return &Rolling{arena: arena, window: window}
}

// Push appends an archive handle, evicting the oldest entry when the
// window is full.
func (r *Rolling) Push(handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, handle)
	if len(r.handles) > r.window {
		r.handles = r.handles[len(r.handles)-r.window:]
	}
}

// SetWindow resizes the window. Shrinking evicts the excess oldest entries
// immediately; growing only changes future eviction. Returns the number of
// segments evicted.
func (r *Rolling) SetWindow(window int) int {
	if window < 1 {
		window = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.window = window
	evicted := len(r.handles) - window
	if evicted <= 0 {
		return 0
	}
	r.handles = r.handles[evicted:]
	return evicted
}

func (r *Rolling) Window() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.window
}

func (r *Rolling) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Snapshot resolves the windowed handles against the archive in order.
// Bytes are shared with the archive.
func (r *Rolling) Snapshot() []Segment {
	r.mu.Lock()
	handles := make([]int, len(r.handles))
	copy(handles, r.handles)
	r.mu.Unlock()

	out := make([]Segment, 0, len(handles))
	for _, h := range handles {
		if seg, ok := r.arena.Get(h); ok {
			out = append(out, seg)
		}
	}
	return out
}

func (r *Rolling) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = nil
}
