// Package encoder produces the FLAC container stream backing capture
// segments: a stream header written once per session, then frames appended
// per segment. Header + any subset of later segments concatenate into a
// decodable container, which is what lets the rolling window evict freely.
package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096

	// MimeType identifies segment payloads to the inference provider.
	MimeType = "audio/flac"
)
