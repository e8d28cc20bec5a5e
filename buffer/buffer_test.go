package buffer

import (
	"testing"

	"pgregory.net/rapid"
)

func seg(i int) Segment {
	return Segment{Index: i, Bytes: []byte{byte(i)}}
}

func TestArchiveAppendOnly(t *testing.T) {
	a := NewArchive()
	for i := range 10 {
		h := a.Append(seg(i))
		if h != i {
			t.Errorf("Append returned handle %d, want %d", h, i)
		}
	}
	if a.Len() != 10 {
		t.Errorf("Len = %d, want 10", a.Len())
	}
	if a.ByteSize() != 10 {
		t.Errorf("ByteSize = %d, want 10", a.ByteSize())
	}

	snap := a.Snapshot()
	for i, s := range snap {
		if s.Index != i {
			t.Errorf("snapshot[%d].Index = %d", i, s.Index)
		}
	}

	a.Reset()
	if a.Len() != 0 || a.ByteSize() != 0 {
		t.Errorf("after Reset: Len=%d ByteSize=%d", a.Len(), a.ByteSize())
	}
}

func TestArchiveUnaffectedByWindowEviction(t *testing.T) {
	a := NewArchive()
	r := NewRolling(a, 3)
	for i := range 20 {
		r.Push(a.Append(seg(i)))
	}
	if a.Len() != 20 {
		t.Errorf("archive Len = %d, want 20", a.Len())
	}
	if r.Len() != 3 {
		t.Errorf("rolling Len = %d, want 3", r.Len())
	}
}

func TestRollingFIFOEviction(t *testing.T) {
	a := NewArchive()
	r := NewRolling(a, 60)
	for i := range 90 {
		r.Push(a.Append(seg(i)))
	}

	snap := r.Snapshot()
	if len(snap) != 60 {
		t.Fatalf("window holds %d segments, want 60", len(snap))
	}
	// Last 60 of 90 pushes, original order preserved.
	for i, s := range snap {
		if s.Index != 30+i {
			t.Errorf("snapshot[%d].Index = %d, want %d", i, s.Index, 30+i)
		}
	}
}

func TestRollingSetWindowShrinkEvicts(t *testing.T) {
	a := NewArchive()
	r := NewRolling(a, 10)
	for i := range 10 {
		r.Push(a.Append(seg(i)))
	}

	evicted := r.SetWindow(4)
	if evicted != 6 {
		t.Errorf("SetWindow evicted %d, want 6", evicted)
	}
	if r.Len() != 4 {
		t.Errorf("Len = %d, want 4", r.Len())
	}
	snap := r.Snapshot()
	if snap[0].Index != 6 || snap[3].Index != 9 {
		t.Errorf("unexpected survivors: first=%d last=%d", snap[0].Index, snap[3].Index)
	}
}

func TestRollingSetWindowGrowKeepsContents(t *testing.T) {
	a := NewArchive()
	r := NewRolling(a, 2)
	r.Push(a.Append(seg(0)))
	r.Push(a.Append(seg(1)))

	if evicted := r.SetWindow(5); evicted != 0 {
		t.Errorf("grow evicted %d, want 0", evicted)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	// Future pushes honor the new window.
	for i := 2; i < 8; i++ {
		r.Push(a.Append(seg(i)))
	}
	if r.Len() != 5 {
		t.Errorf("Len after pushes = %d, want 5", r.Len())
	}
}

func TestRollingSnapshotSharesBytes(t *testing.T) {
	a := NewArchive()
	r := NewRolling(a, 4)
	payload := []byte{1, 2, 3}
	r.Push(a.Append(Segment{Index: 0, Bytes: payload}))

	snap := r.Snapshot()
	if &snap[0].Bytes[0] != &payload[0] {
		t.Error("snapshot copied segment bytes; expected shared backing array")
	}
}

func TestRollingWindowInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NewArchive()
		w := rapid.IntRange(1, 50).Draw(t, "window")
		r := NewRolling(a, w)

		n := rapid.IntRange(0, 200).Draw(t, "pushes")
		for i := range n {
			r.Push(a.Append(seg(i)))
			if r.Len() > r.Window() {
				t.Fatalf("len %d exceeds window %d", r.Len(), r.Window())
			}
		}

		w2 := rapid.IntRange(1, 50).Draw(t, "resize")
		evicted := r.SetWindow(w2)
		if r.Len() > w2 {
			t.Fatalf("len %d exceeds window %d after resize", r.Len(), w2)
		}
		if evicted < 0 {
			t.Fatalf("negative eviction count %d", evicted)
		}

		// Relative order always matches the archive order.
		snap := r.Snapshot()
		for i := 1; i < len(snap); i++ {
			if snap[i].Index != snap[i-1].Index+1 {
				t.Fatalf("order broken at %d: %d then %d", i, snap[i-1].Index, snap[i].Index)
			}
		}
	})
}
