package encoder

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// Flac encodes 16-bit mono PCM into a FLAC stream, tracking the boundary
// between the stream header and subsequently written frames so each
// segment's bytes can be handed out separately.
type Flac struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	enc         *flac.Encoder
	headerLen   int
	mark        int
	totalFrames uint64
}

func NewFlac() (*Flac, error) {
	e := &Flac{}
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
		NSamples:      0,
	}
	enc, err := flac.NewEncoder(&e.buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	// NewEncoder writes the magic marker and StreamInfo eagerly.
	e.headerLen = e.buf.Len()
	e.mark = e.headerLen
	return e, nil
}

// Header returns the container framing written at stream start. Required
// as a prefix to decode any subset of later segments.
func (e *Flac) Header() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]byte, e.headerLen)
	copy(out, e.buf.Bytes()[:e.headerLen])
	return out
}

// EncodeSegment compresses one segment's samples, chunked into fixed-size
// blocks, and returns only the newly written frame bytes.
func (e *Flac) EncodeSegment(samples []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for off := 0; off < len(samples); off += BlockSize {
		end := min(off+BlockSize, len(samples))
		if err := e.writeBlock(samples[off:end]); err != nil {
			return nil, err
		}
	}

	out := make([]byte, e.buf.Len()-e.mark)
	copy(out, e.buf.Bytes()[e.mark:])
	e.mark = e.buf.Len()
	return out, nil
}

func (e *Flac) writeBlock(block []int16) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  samples32,
		NSamples: len(block),
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{subframe},
	}

	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.totalFrames += uint64(len(block))
	return nil
}

// TotalFrames reports the number of PCM samples encoded so far.
func (e *Flac) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}

func (e *Flac) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Close()
}
