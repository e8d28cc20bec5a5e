// Package engine is the capture and on-demand analysis core: it owns the
// session audio buffers, the remote context-cache lifecycle, request
// orchestration against the streaming inference provider, and usage
// metering. Capture runs continuously and is never paused by an in-flight
// analysis; at most one analysis runs at a time, enforced by the session
// state machine.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"earshot/audio"
	"earshot/buffer"
	"earshot/gemini"
	"earshot/log"
	"earshot/meter"
)

var (
	// ErrSessionActive: Start was called while a capture session is open.
	ErrSessionActive = errors.New("a capture session is already active")

	// ErrEmptyBuffer: analysis was triggered before any audio was captured.
	// No request is dispatched and nothing is charged.
	ErrEmptyBuffer = errors.New("no audio captured yet")

	// ErrPayloadTooLarge: the session archive exceeds the upload ceiling.
	// Rejected locally; the provider would refuse it and bill the egress.
	ErrPayloadTooLarge = errors.New("session archive exceeds upload ceiling")
)

const (
	DefaultModel         = "gemini-2.0-flash"
	DefaultWindowSeconds = 60

	// MaxUploadBytes caps full-session uploads, matching the provider's
	// inline request ceiling.
	MaxUploadBytes = 20 << 20
)

type Config struct {
	Audio    audio.Context
	Provider gemini.Client

	// MicDevice pins microphone capture to a specific device; nil uses
	// the platform default.
	MicDevice *audio.DeviceInfo

	Model         string        // default DefaultModel
	WindowSeconds int           // default DefaultWindowSeconds
	Interval      time.Duration // segment cadence, default 1s; tests shorten it

	Instruction string // system instruction for analysis
	Knowledge   string // user-supplied context document

	// OnUsage is invoked synchronously after every accounting change.
	OnUsage func(meter.Stats)
	// OnCacheStatus is invoked synchronously when the remote context
	// cache becomes active or inactive.
	OnCacheStatus func(bool)
}

type Engine struct {
	provider gemini.Client
	archive  *buffer.Archive
	rolling  *buffer.Rolling
	met      *meter.Meter
	cache    *cacheManager
	capture  *captureController

	onUsage func(meter.Stats)

	mu          sync.Mutex
	state       State
	model       string
	instruction string
	knowledge   string
	stopPending bool
}

func New(cfg Config) *Engine {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = DefaultWindowSeconds
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	archive := buffer.NewArchive()
	rolling := buffer.NewRolling(archive, cfg.WindowSeconds)

	e := &Engine{
		provider:    cfg.Provider,
		archive:     archive,
		rolling:     rolling,
		met:         meter.New(),
		onUsage:     cfg.OnUsage,
		state:       Idle,
		model:       cfg.Model,
		instruction: cfg.Instruction,
		knowledge:   cfg.Knowledge,
	}
	e.capture = newCaptureController(cfg.Audio, archive, rolling, cfg.Interval)
	e.capture.micDevice = cfg.MicDevice
	e.cache = newCacheManager(cfg.Provider, cfg.OnCacheStatus)
	return e
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Model() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

func (e *Engine) Usage() meter.Stats {
	return e.met.Stats()
}

// BufferedSeconds reports the current rolling-window duration: segment
// count, one segment per second of capture.
func (e *Engine) BufferedSeconds() int {
	return e.rolling.Len()
}

// Window reports the configured rolling-window length in seconds.
func (e *Engine) Window() int {
	return e.rolling.Window()
}

func (e *Engine) CacheActive() bool {
	return e.cache.Active()
}

// VoiceDetected reports whether speech has been heard on the microphone
// path since capture started.
func (e *Engine) VoiceDetected() bool {
	return e.capture.voiceDetected()
}

// Start opens a capture session. Any previous session's buffers are
// cleared. Capture-time failures are fatal to the start attempt only;
// retrying Start is always valid.
func (e *Engine) Start(mode Mode) error {
	e.mu.Lock()
	if e.capture.isActive() {
		e.mu.Unlock()
		return ErrSessionActive
	}
	if err := checkTransition(e.state, Capturing); err != nil {
		e.mu.Unlock()
		return err
	}
	model := e.model
	e.mu.Unlock()

	if err := e.capture.start(mode); err != nil {
		return err
	}

	e.mu.Lock()
	e.state = Capturing
	e.mu.Unlock()

	log.SessionStart(mode.String(), model, e.rolling.Window())
	return nil
}

// Stop ends the capture session. Idempotent. Buffers and the session
// header are left intact; an in-flight analysis is not cancelled and
// completes on the snapshot it already holds.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == Analyzing {
		e.stopPending = true
		e.mu.Unlock()
		e.capture.stopCapture()
		return
	}
	wasOpen := e.state != Idle
	e.state = Idle
	e.mu.Unlock()

	e.capture.stopCapture()
	if wasOpen {
		log.SessionEnd(e.archive.Len(), float64(e.archive.ByteSize())/1024)
	}
}

// Wipe is the privacy reset: stop if active, then discard all captured
// audio, the session header, and the usage counters.
func (e *Engine) Wipe() {
	e.mu.Lock()
	e.state = Idle
	e.stopPending = false
	e.mu.Unlock()

	e.capture.stopCapture()
	e.capture.clearSession()
	e.met.Reset()
	e.fireUsage()
	log.SessionWipe()
}

// SetWindow resizes the rolling window, evicting immediately when
// shrinking. Returns the number of segments evicted.
func (e *Engine) SetWindow(seconds int) int {
	evicted := e.rolling.SetWindow(seconds)
	if evicted > 0 {
		log.Infof("window resized to %ds, evicted %d segments", seconds, evicted)
	}
	return evicted
}

// SetModel switches the inference model. Any active context cache is
// invalidated unconditionally; a SetContext call must follow to
// re-establish one for the new model.
func (e *Engine) SetModel(model string) {
	e.mu.Lock()
	if model == e.model {
		e.mu.Unlock()
		return
	}
	e.model = model
	e.mu.Unlock()
	e.cache.OnModelChanged(model)
}

// SetContext replaces the system instruction and knowledge document and
// refreshes the remote context cache for the current model.
func (e *Engine) SetContext(ctx context.Context, instruction, knowledge string) {
	e.mu.Lock()
	e.instruction = instruction
	e.knowledge = knowledge
	model := e.model
	e.mu.Unlock()
	e.cache.Refresh(ctx, mergeContext(instruction, knowledge), model)
}

func mergeContext(instruction, knowledge string) string {
	if knowledge == "" {
		return instruction
	}
	return instruction + "\n\n" + knowledge
}

func (e *Engine) mergedContext() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return mergeContext(e.instruction, e.knowledge)
}

func (e *Engine) fireUsage() {
	if e.onUsage != nil {
		e.onUsage(e.met.Stats())
	}
}
