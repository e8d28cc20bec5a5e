package engine

import (
	"context"
	"strings"
	"time"

	"earshot/buffer"
	"earshot/encoder"
	"earshot/gemini"
	"earshot/log"
)

// Chunk is one increment of a streaming analysis. A Chunk with Err set is
// terminal: the channel closes after it and the analysis counts as failed.
type Chunk struct {
	Text string
	Err  error
}

const (
	windowPrompt = "Analyze the attached audio. It is the most recent portion of an ongoing live session. Describe what is being discussed and anything actionable."
	fullPrompt   = "Analyze the attached audio. It is the complete recording of the session so far. Summarize it and call out anything actionable."
)

// AnalyzeWindow runs an analysis over the rolling window. The returned
// channel streams response text as it arrives from the provider.
func (e *Engine) AnalyzeWindow(ctx context.Context) (<-chan Chunk, error) {
	segs := e.rolling.Snapshot()
	if len(segs) == 0 {
		return nil, ErrEmptyBuffer
	}

	// Window segments are bare frames; the stream header must prefix them
	// or the payload is undecodable.
	body := make([]buffer.Segment, 0, len(segs)+1)
	body = append(body, buffer.Segment{Bytes: e.capture.sessionHeader(), Header: true})
	body = append(body, segs...)

	return e.dispatch(ctx, "window", windowPrompt, body, float64(len(segs)))
}

// AnalyzeFullSession runs an analysis over the entire session archive.
// Rejected locally with ErrPayloadTooLarge when the archive exceeds the
// upload ceiling; nothing is dispatched or charged in that case.
func (e *Engine) AnalyzeFullSession(ctx context.Context) (<-chan Chunk, error) {
	segs := e.archive.Snapshot()
	var seconds float64
	for _, s := range segs {
		if !s.Header {
			seconds++
		}
	}
	if seconds == 0 {
		return nil, ErrEmptyBuffer
	}
	if e.archive.ByteSize() > MaxUploadBytes {
		return nil, ErrPayloadTooLarge
	}

	return e.dispatch(ctx, "full", fullPrompt, segs, seconds)
}

// dispatch moves the session into Analyzing, charges input on attempt,
// issues the request and relays the stream. At most one dispatch can be
// live: a second trigger fails the transition check.
func (e *Engine) dispatch(ctx context.Context, scope, prompt string, segs []buffer.Segment, seconds float64) (<-chan Chunk, error) {
	e.mu.Lock()
	if err := checkTransition(e.state, Analyzing); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.state = Analyzing
	model := e.model
	e.mu.Unlock()

	parts := make([][]byte, len(segs))
	var payload int64
	for i, s := range segs {
		parts[i] = s.Bytes
		payload += int64(len(s.Bytes))
	}

	// Charged on attempt: the provider bills ingested audio whether or not
	// the request succeeds, so the meter moves before Generate does.
	e.met.AddInput(seconds, model)
	e.fireUsage()

	req := gemini.GenerateRequest{
		Model:    model,
		Audio:    parts,
		MimeType: encoder.MimeType,
		Prompt:   prompt,
	}
	cached := false
	if id := e.cache.ActiveID(model); id != "" {
		req.CachedContent = id
		cached = true
	} else {
		req.SystemInstruction = e.mergedContext()
	}

	start := time.Now()
	events, err := e.provider.Generate(ctx, req)
	if err != nil {
		// Provider rejections (rate limit, payload size, opaque API errors)
		// surface the same way mid-stream failures do: one terminal chunk.
		e.finishAnalysis(true)
		log.Errorf("%s analysis dispatch failed: %v", scope, err)
		out := make(chan Chunk, 1)
		out <- Chunk{Err: err}
		close(out)
		return out, nil
	}

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		var text strings.Builder
		var chunks int
		failed := false
		for ev := range events {
			if ev.Err != nil {
				failed = true
				out <- Chunk{Err: ev.Err}
				break
			}
			chunks++
			text.WriteString(ev.Text)
			e.met.AddOutput(ev.Text, model)
			e.fireUsage()
			out <- Chunk{Text: ev.Text}
		}
		e.finishAnalysis(failed)

		log.AnalysisMetrics(log.AnalysisMetricsData{
			Scope:        scope,
			Model:        model,
			AudioSeconds: seconds,
			PayloadKB:    float64(payload) / 1024,
			Cached:       cached,
			Chunks:       chunks,
			OutputChars:  text.Len(),
			TotalMs:      float64(time.Since(start).Milliseconds()),
		})
		if text.Len() > 0 {
			log.AnalysisText(text.String())
		}
	}()
	return out, nil
}

// finishAnalysis settles the post-analysis state: back to Capturing while
// the session is live, Errored on failure, Idle when a stop arrived while
// the analysis was in flight.
func (e *Engine) finishAnalysis(failed bool) {
	stillCapturing := e.capture.isActive()

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.stopPending || !stillCapturing:
		e.stopPending = false
		e.state = Idle
	case failed:
		e.state = Errored
	default:
		e.state = Capturing
	}
}
