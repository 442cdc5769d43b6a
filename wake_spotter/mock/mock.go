// Package mock provides scripted wake_spotter collaborators.
package mock

import (
	"context"
	"sync"
	"time"

	"assistant-ears/frame_source"
	"assistant-ears/wake_spotter"
)

// Scorer returns Results in order, one per call; after that it returns
// Default. Errs, when non-nil at an index, fail that call instead.
type Scorer struct {
	mu sync.Mutex

	Results [][]wake_spotter.Score
	Errs    []error
	Default []wake_spotter.Score

	calls  int
	resets int
}

func (s *Scorer) Score(samples []float32) ([]wake_spotter.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++

	if i < len(s.Errs) && s.Errs[i] != nil {
		return nil, s.Errs[i]
	}

	if i < len(s.Results) {
		return s.Results[i], nil
	}

	return s.Default, nil
}

func (s *Scorer) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

// Calls returns how many times Score was invoked. Thread-safe.
func (s *Scorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Scorer) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Spotter is a wake_spotter.Interface that reads frames and reports the
// scripted outcome of each Detect call. With no outcome left it blocks,
// still reading frames, until the reader fails or ctx is done.
type Spotter struct {
	mu sync.Mutex

	// Outcomes are consumed one per Detect call. An entry detects after
	// reading Frames frames.
	Outcomes []Outcome

	calls int
}

type Outcome struct {
	Frames   int
	Detected bool
	Err      error
}

func (s *Spotter) Detect(ctx context.Context, reader frame_source.Reader, _ time.Duration) (bool, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	var out *Outcome
	if i < len(s.Outcomes) {
		o := s.Outcomes[i]
		out = &o
	}
	s.mu.Unlock()

	for n := 0; out == nil || n < out.Frames; n++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if _, err := reader.ReadFrame(); err != nil {
			return false, err
		}
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	return out.Detected, out.Err
}

// Calls returns how many times Detect was invoked. Thread-safe.
func (s *Spotter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	_ wake_spotter.Scorer    = (*Scorer)(nil)
	_ wake_spotter.Resetter  = (*Scorer)(nil)
	_ wake_spotter.Interface = (*Spotter)(nil)
)
