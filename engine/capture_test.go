package engine

import (
	"errors"
	"testing"
	"time"

	"earshot/audio"
	"earshot/gemini"
)

// newTestEngine wires an Engine against fakes with a ticker interval long
// enough that segments are only produced by explicit emit calls.
func newTestEngine(t *testing.T) (*Engine, *audio.FakeContext, *gemini.Fake) {
	t.Helper()
	fctx := audio.NewFakeContext()
	provider := gemini.NewFake()
	e := New(Config{
		Audio:    fctx,
		Provider: provider,
		Interval: time.Hour,
	})
	return e, fctx, provider
}

func TestStartProducesHeaderThenSegments(t *testing.T) {
	e, fctx, _ := newTestEngine(t)
	if err := e.Start(ModeMicrophone); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	if got := e.State(); got != Capturing {
		t.Fatalf("state = %s, want capturing", got)
	}

	mic := fctx.Captures()[0]
	if !mic.Started() {
		t.Fatal("microphone not started")
	}

	mic.Feed(make([]byte, 32000)) // one second of s16le
	e.capture.emit()
	e.capture.emit() // silent second

	segs := e.archive.Snapshot()
	if len(segs) != 3 {
		t.Fatalf("archive = %d segments, want header + 2", len(segs))
	}
	if !segs[0].Header || segs[0].Index != 0 {
		t.Error("first archive segment is not the header")
	}
	if segs[1].Header || segs[2].Header {
		t.Error("data segments flagged as header")
	}
	if e.rolling.Len() != 2 {
		t.Errorf("window = %d segments, want 2 (header excluded)", e.rolling.Len())
	}
	if e.BufferedSeconds() != 2 {
		t.Errorf("BufferedSeconds = %d, want 2", e.BufferedSeconds())
	}
}

func TestWindowEvictionLeavesArchiveIntact(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.SetWindow(60)
	if err := e.Start(ModeMicrophone); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	for i := 0; i < 90; i++ {
		e.capture.emit()
	}

	if e.rolling.Len() != 60 {
		t.Errorf("window = %d, want 60", e.rolling.Len())
	}
	if e.archive.Len() != 91 {
		t.Errorf("archive = %d, want 91 (header + 90)", e.archive.Len())
	}

	win := e.rolling.Snapshot()
	if win[0].Index != 31 || win[len(win)-1].Index != 90 {
		t.Errorf("window spans %d..%d, want 31..90", win[0].Index, win[len(win)-1].Index)
	}
}

func TestShrinkWindowEvictsImmediately(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Start(ModeMicrophone); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	for i := 0; i < 40; i++ {
		e.capture.emit()
	}
	if evicted := e.SetWindow(10); evicted != 30 {
		t.Errorf("evicted = %d, want 30", evicted)
	}
	if e.rolling.Len() != 10 {
		t.Errorf("window = %d, want 10", e.rolling.Len())
	}
}

func TestMixedAcquisitionFailureReleasesMicrophone(t *testing.T) {
	e, fctx, _ := newTestEngine(t)
	fctx.SystemTracks = 0

	err := e.Start(ModeMixed)
	if !errors.Is(err, audio.ErrNoSystemTrack) {
		t.Fatalf("err = %v, want ErrNoSystemTrack", err)
	}
	if got := e.State(); got != Idle {
		t.Errorf("state = %s, want idle", got)
	}

	caps := fctx.Captures()
	if len(caps) != 1 {
		t.Fatalf("captures = %d, want 1 (mic only)", len(caps))
	}
	if !caps[0].Closed() {
		t.Error("microphone not released after system-audio failure")
	}
}

func TestStartWhileActive(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Start(ModeMicrophone); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	if err := e.Start(ModeMicrophone); !errors.Is(err, ErrSessionActive) {
		t.Errorf("err = %v, want ErrSessionActive", err)
	}
}

func TestStopIsIdempotentAndKeepsBuffers(t *testing.T) {
	e, fctx, _ := newTestEngine(t)
	if err := e.Start(ModeMicrophone); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.capture.emit()

	e.Stop()
	e.Stop()

	if got := e.State(); got != Idle {
		t.Errorf("state = %s, want idle", got)
	}
	for _, c := range fctx.Captures() {
		if !c.Closed() {
			t.Error("device not released on stop")
		}
	}
	// Stop flushes one final segment; buffers survive for a later wipe.
	if e.archive.Len() < 3 {
		t.Errorf("archive = %d segments after stop, want header + >=2", e.archive.Len())
	}
}

func TestWipeDiscardsEverything(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Start(ModeMicrophone); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.capture.emit()
	e.Wipe()

	if e.archive.Len() != 0 || e.rolling.Len() != 0 {
		t.Error("buffers not cleared by wipe")
	}
	if h := e.capture.sessionHeader(); h != nil {
		t.Error("session header survived wipe")
	}
	if s := e.Usage(); s.Analyses != 0 || s.AudioSeconds != 0 || s.EstimatedCost != 0 {
		t.Errorf("usage not zeroed: %+v", s)
	}
	if got := e.State(); got != Idle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestRestartResetsSession(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Start(ModeMicrophone); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		e.capture.emit()
	}
	e.Stop()

	if err := e.Start(ModeMicrophone); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop()

	if e.archive.Len() != 1 {
		t.Errorf("archive = %d after restart, want header only", e.archive.Len())
	}
	if e.rolling.Len() != 0 {
		t.Errorf("window = %d after restart, want 0", e.rolling.Len())
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"mic": ModeMicrophone, "microphone": ModeMicrophone,
		"system": ModeSystem,
		"mixed":  ModeMixed, "both": ModeMixed,
	} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("telepathy"); err == nil {
		t.Error("ParseMode accepted garbage")
	}
}

func TestMixPCMSaturates(t *testing.T) {
	out := mixPCM([]int16{30000, -30000, 100}, []int16{30000, -30000})
	if out[0] != 32767 {
		t.Errorf("positive clip = %d, want 32767", out[0])
	}
	if out[1] != -32768 {
		t.Errorf("negative clip = %d, want -32768", out[1])
	}
	if out[2] != 100 {
		t.Errorf("short stream tail = %d, want 100", out[2])
	}
}
