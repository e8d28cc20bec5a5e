package meter

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestAddInput(t *testing.T) {
	m := New()
	m.AddInput(60, "gemini-2.0-flash")

	s := m.Stats()
	if s.Analyses != 1 {
		t.Errorf("Analyses = %d, want 1", s.Analyses)
	}
	if s.AudioSeconds != 60 {
		t.Errorf("AudioSeconds = %v, want 60", s.AudioSeconds)
	}
	// 60s * 32 tok/s * $0.70/1M
	want := 60 * 32 * 0.70 / 1e6
	if !almostEqual(s.EstimatedCost, want) {
		t.Errorf("EstimatedCost = %v, want %v", s.EstimatedCost, want)
	}
}

func TestAddOutput(t *testing.T) {
	m := New()
	text := "some streamed advice text, forty characters...."
	m.AddOutput(text, "gemini-2.5-flash")

	want := float64(len(text)) / 4 * 2.50 / 1e6
	if s := m.Stats(); !almostEqual(s.EstimatedCost, want) {
		t.Errorf("EstimatedCost = %v, want %v", s.EstimatedCost, want)
	}
}

func TestUnknownModelUsesDefaultRates(t *testing.T) {
	m := New()
	m.AddInput(10, "some-future-model")
	want := 10 * 32 * defaultRates.input / 1e6
	if s := m.Stats(); !almostEqual(s.EstimatedCost, want) {
		t.Errorf("EstimatedCost = %v, want %v", s.EstimatedCost, want)
	}
}

func TestCountersAccumulate(t *testing.T) {
	m := New()
	m.AddInput(5, "gemini-2.0-flash")
	m.AddInput(7, "gemini-2.0-flash")
	m.AddOutput("abcd", "gemini-2.0-flash")

	s := m.Stats()
	if s.Analyses != 2 {
		t.Errorf("Analyses = %d, want 2", s.Analyses)
	}
	if s.AudioSeconds != 12 {
		t.Errorf("AudioSeconds = %v, want 12", s.AudioSeconds)
	}
}

func TestReset(t *testing.T) {
	m := New()
	m.AddInput(30, "gemini-2.5-pro")
	m.AddOutput("text", "gemini-2.5-pro")
	m.Reset()

	if s := m.Stats(); s != (Stats{}) {
		t.Errorf("after Reset: %+v", s)
	}
}
