// Package meter estimates session spend from audio seconds sent and text
// received. Estimates only: billing reconciliation happens provider-side,
// the meter exists for user-facing cost visibility.
package meter

import "sync"

const (
	// Gemini bills roughly this many tokens per second of audio input.
	audioTokensPerSecond = 32
	// Rough average for English text; output token counts are estimated
	// from character length, not tokenized.
	charsPerToken = 4
)

// USD per million tokens.
type rates struct {
	input  float64
	output float64
}

var modelRates = map[string]rates{
	"gemini-2.0-flash": {input: 0.70, output: 0.40},
	"gemini-2.5-flash": {input: 1.00, output: 2.50},
	"gemini-2.5-pro":   {input: 1.25, output: 10.00},
}

var defaultRates = rates{input: 1.00, output: 2.50}

func ratesFor(model string) rates {
	if r, ok := modelRates[model]; ok {
		return r
	}
	return defaultRates
}

// Stats are monotonically increasing counters, zeroed only by Reset.
type Stats struct {
	Analyses      int
	AudioSeconds  float64
	EstimatedCost float64
}

type Meter struct {
	mu    sync.Mutex
	stats Stats
}

func New() *Meter {
	return &Meter{}
}

// AddInput charges for audio seconds sent to the given model and bumps the
// analysis counter. Charged on attempt: the provider bills for dispatched
// requests whether or not they succeed.
func (m *Meter) AddInput(seconds float64, model string) {
	r := ratesFor(model)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Analyses++
	m.stats.AudioSeconds += seconds
	m.stats.EstimatedCost += seconds * audioTokensPerSecond * r.input / 1e6
}

// AddOutput charges for streamed response text from the given model.
func (m *Meter) AddOutput(text string, model string) {
	r := ratesFor(model)
	tokens := float64(len(text)) / charsPerToken
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.EstimatedCost += tokens * r.output / 1e6
}

func (m *Meter) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Reset zeroes all counters. Used only on session wipe.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}
