package engine

import (
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"earshot/encoder"
)

const (
	vadMode       = 3
	vadFrameMs    = 20
	vadFrameBytes = encoder.SampleRate * vadFrameMs / 1000 * 2 // 640 bytes
	vadDebounce   = 3                                          // consecutive speech frames to confirm voice
)

// vadProcessor watches the microphone path for speech. Purely advisory:
// capture and analysis never gate on it, it only feeds status reporting.
type vadProcessor struct {
	vad *webrtcvad.VAD

	mu            sync.Mutex
	buf           []byte
	voiceDetected bool
	speechRun     int
}

func newVADProcessor() (*vadProcessor, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &vadProcessor{vad: v}, nil
}

func (p *vadProcessor) Process(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, data...)
	for len(p.buf) >= vadFrameBytes {
		frame := p.buf[:vadFrameBytes]
		p.buf = p.buf[vadFrameBytes:]

		active, err := p.vad.Process(encoder.SampleRate, frame)
		if err != nil {
			continue
		}
		if active {
			p.speechRun++
			if p.speechRun >= vadDebounce {
				p.voiceDetected = true
			}
		} else {
			p.speechRun = 0
		}
	}
}

func (p *vadProcessor) VoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

func (p *vadProcessor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
	p.voiceDetected = false
	p.speechRun = 0
}
