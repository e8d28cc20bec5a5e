package engine

import (
	"fmt"
	"sync"
	"time"

	"earshot/audio"
	"earshot/buffer"
	"earshot/encoder"
	"earshot/log"
)

// Mode selects which sources a capture session records.
type Mode int

const (
	ModeMicrophone Mode = iota
	ModeSystem
	ModeMixed
)

func (m Mode) String() string {
	switch m {
	case ModeMicrophone:
		return "mic"
	case ModeSystem:
		return "system"
	case ModeMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "mic", "microphone":
		return ModeMicrophone, nil
	case "system":
		return ModeSystem, nil
	case "mixed", "both":
		return ModeMixed, nil
	default:
		return 0, fmt.Errorf("unknown capture mode %q (want mic, system or mixed)", s)
	}
}

// captureController owns the platform devices and the segment pipeline:
// PCM arrives on backend callbacks, gets mixed and encoded once per
// interval, and lands in the archive with a handle pushed to the window.
// Silence is captured like everything else; segments are produced at a
// fixed cadence regardless of signal.
type captureController struct {
	actx      audio.Context
	archive   *buffer.Archive
	rolling   *buffer.Rolling
	interval  time.Duration
	micDevice *audio.DeviceInfo

	mu        sync.Mutex
	active    bool
	devices   []audio.CaptureDevice
	enc       *encoder.Flac
	header    []byte
	nextIndex int
	stop      chan struct{}
	done      chan struct{}

	pcmMu  sync.Mutex
	micBuf []int16
	sysBuf []int16

	vad *vadProcessor
}

func newCaptureController(actx audio.Context, archive *buffer.Archive, rolling *buffer.Rolling, interval time.Duration) *captureController {
	return &captureController{
		actx:     actx,
		archive:  archive,
		rolling:  rolling,
		interval: interval,
	}
}

func (c *captureController) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// start acquires the devices for mode and begins producing segments.
// Acquisition is all-or-nothing: if any source fails, devices already
// acquired are released before the error is returned.
func (c *captureController) start(mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrSessionActive
	}

	cfg := audio.CaptureConfig{SampleRate: encoder.SampleRate, Channels: encoder.Channels}

	var devices []audio.CaptureDevice
	release := func() {
		for _, d := range devices {
			d.Close()
		}
	}

	var mic, sys audio.CaptureDevice
	var err error
	if mode == ModeMicrophone || mode == ModeMixed {
		mic, err = c.actx.NewCapture(audio.Microphone, c.micDevice, cfg)
		if err != nil {
			return fmt.Errorf("acquiring microphone: %w", err)
		}
		devices = append(devices, mic)
	}
	if mode == ModeSystem || mode == ModeMixed {
		sys, err = c.actx.NewCapture(audio.SystemAudio, nil, cfg)
		if err != nil {
			release()
			return fmt.Errorf("acquiring system audio: %w", err)
		}
		devices = append(devices, sys)
	}

	enc, err := encoder.NewFlac()
	if err != nil {
		release()
		return err
	}

	// Fresh session: previous buffers are discarded and the new stream
	// header becomes segment zero of the archive. It never enters the
	// rolling window; window analyses prepend it explicitly.
	c.archive.Reset()
	c.rolling.Reset()
	c.enc = enc
	c.header = enc.Header()
	c.archive.Append(buffer.Segment{Index: 0, Bytes: c.header, Header: true})
	c.nextIndex = 1

	c.pcmMu.Lock()
	c.micBuf = nil
	c.sysBuf = nil
	c.pcmMu.Unlock()

	if c.vad == nil {
		if v, verr := newVADProcessor(); verr != nil {
			log.Warnf("voice detection unavailable: %v", verr)
		} else {
			c.vad = v
		}
	}
	if c.vad != nil {
		c.vad.Reset()
	}

	if mic != nil {
		mic.SetCallback(func(data []byte, _ uint32) {
			samples := bytesToSamples(data)
			c.pcmMu.Lock()
			c.micBuf = append(c.micBuf, samples...)
			c.pcmMu.Unlock()
			if c.vad != nil {
				c.vad.Process(data)
			}
		})
	}
	if sys != nil {
		sys.SetCallback(func(data []byte, _ uint32) {
			samples := bytesToSamples(data)
			c.pcmMu.Lock()
			c.sysBuf = append(c.sysBuf, samples...)
			c.pcmMu.Unlock()
		})
	}

	for _, d := range devices {
		if err := d.Start(); err != nil {
			for _, dd := range devices {
				dd.ClearCallback()
				dd.Stop()
			}
			release()
			c.enc = nil
			return fmt.Errorf("starting %s capture: %w", mode, err)
		}
	}

	c.devices = devices
	c.active = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	return nil
}

func (c *captureController) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			// Flush whatever the callbacks delivered since the last tick
			// so the session tail is not dropped.
			c.emit()
			return
		case <-ticker.C:
			c.emit()
		}
	}
}

// stopCapture releases the devices and closes out the encoder. Idempotent.
// The archive, window and session header survive until the next session
// or an explicit wipe.
func (c *captureController) stopCapture() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	devices := c.devices
	c.devices = nil
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done

	for _, d := range devices {
		d.ClearCallback()
		d.Stop()
		d.Close()
	}

	c.mu.Lock()
	if c.enc != nil {
		if err := c.enc.Close(); err != nil {
			log.Warnf("closing encoder: %v", err)
		}
		c.enc = nil
	}
	c.mu.Unlock()
}

// clearSession discards everything the session produced, header included.
func (c *captureController) clearSession() {
	c.mu.Lock()
	c.header = nil
	c.nextIndex = 0
	c.mu.Unlock()

	c.pcmMu.Lock()
	c.micBuf = nil
	c.sysBuf = nil
	c.pcmMu.Unlock()

	c.archive.Reset()
	c.rolling.Reset()
	if c.vad != nil {
		c.vad.Reset()
	}
}

// emit drains the source buffers, mixes them into one mono segment,
// encodes it and commits it to the archive and the window. Runs once per
// tick on the capture goroutine; tests call it directly.
func (c *captureController) emit() {
	c.pcmMu.Lock()
	mic := c.micBuf
	sys := c.sysBuf
	c.micBuf = nil
	c.sysBuf = nil
	c.pcmMu.Unlock()

	samples := mixPCM(mic, sys)
	if len(samples) < encoder.SampleRate {
		// Capture is wall-clock paced: a quiet or underdelivering source
		// still yields a full one-second segment, padded with silence.
		samples = append(samples, make([]int16, encoder.SampleRate-len(samples))...)
	}

	c.mu.Lock()
	enc := c.enc
	index := c.nextIndex
	c.mu.Unlock()
	if enc == nil {
		return
	}

	data, err := enc.EncodeSegment(samples)
	if err != nil {
		log.Errorf("encoding segment %d: %v", index, err)
		return
	}

	handle := c.archive.Append(buffer.Segment{Index: index, Bytes: data})
	c.rolling.Push(handle)

	c.mu.Lock()
	c.nextIndex++
	c.mu.Unlock()
}

func (c *captureController) sessionHeader() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header
}

func (c *captureController) voiceDetected() bool {
	if c.vad == nil {
		return false
	}
	return c.vad.VoiceDetected()
}

// mixPCM sums two mono streams sample-wise with saturation. The shorter
// stream is treated as silence past its end.
func mixPCM(a, b []int16) []int16 {
	n := max(len(a), len(b))
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var v int32
		if i < len(a) {
			v += int32(a[i])
		}
		if i < len(b) {
			v += int32(b[i])
		}
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

func bytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return out
}
