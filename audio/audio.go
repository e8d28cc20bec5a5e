// Package audio abstracts platform capture sources. A Context enumerates
// devices and opens captures for a source kind; captures deliver PCM
// (16 kHz mono s16le) through a callback. Backends: PulseAudio on linux,
// miniaudio elsewhere, plus a fake for tests.
package audio

import (
	"errors"
	"strings"
)

// Kind selects which class of source to acquire.
type Kind int

const (
	// Microphone is a hardware input device.
	Microphone Kind = iota
	// SystemAudio is the machine's playback stream looped back as input
	// (a PulseAudio monitor source).
	SystemAudio
)

func (k Kind) String() string {
	switch k {
	case Microphone:
		return "microphone"
	case SystemAudio:
		return "system"
	default:
		return "unknown"
	}
}

var (
	// ErrUnsupported reports that the platform backend cannot serve the
	// requested source kind at all.
	ErrUnsupported = errors.New("capture kind unsupported on this platform")

	// ErrPermissionDenied reports that the OS refused access to the source.
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrNoSystemTrack reports that the platform exposes zero system-audio
	// tracks. Distinct from ErrPermissionDenied: nothing to capture, rather
	// than not allowed to.
	ErrNoSystemTrack = errors.New("no system audio track")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices(kind Kind) ([]DeviceInfo, error)
	NewCapture(kind Kind, device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}
