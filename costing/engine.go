/*
engine.go - Read, classify, order, replay, assemble

PURPOSE:
  Engine is the only entry point that touches an event source. One call to
  Compute reads every event up to the end of the window once, classifies
  it, orders it and hands it to the replay for the requested method.

FAILURE MODES:
  - window invalid:       InvalidWindowError, nothing is read
  - method unknown:       ErrUnknownMethod, nothing is read
  - source read failed:   wrapped ErrSourceUnavailable
  - reason unknown:       UnclassifiedReasonError, nothing is replayed
  - ctx cancelled:        ctx.Err()

CONCURRENCY:
  Engine holds no mutable state. Concurrent Compute calls are safe as long
  as the source is.
*/
package costing

import (
	"context"
	"fmt"
)

// Engine computes summaries over an event source.
type Engine struct {
	Source  EventSource
	Reasons ReasonTable
	Policy  Policy

	// CheckEvery and Audit are passed through to the replay.
	CheckEvery int
	Audit      bool
}

// NewEngine wires an engine with the default reason table.
func NewEngine(src EventSource, policy Policy) *Engine {
	return &Engine{
		Source:     src,
		Reasons:    DefaultReasons,
		Policy:     policy,
		CheckEvery: DefaultCheckEvery,
	}
}

// Events returns the classified, ordered stream the replay for w would see:
// everything in scope up to the end of the window, pre-window history included.
func (e *Engine) Events(ctx context.Context, w Window) ([]Event, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	raws, err := e.Source.Events(ctx, w.Scope.Normalize(), w.End())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	reasons := e.Reasons
	if reasons == nil {
		reasons = DefaultReasons
	}
	events, err := reasons.ClassifyAll(raws)
	if err != nil {
		return nil, err
	}

	OrderEvents(events)
	return events, nil
}

// Compute produces the summary for one method over one window.
func (e *Engine) Compute(ctx context.Context, method Method, w Window) (Summary, error) {
	if err := w.Validate(); err != nil {
		return Summary{}, err
	}
	replayFn, err := replayerFor(method)
	if err != nil {
		return Summary{}, err
	}

	events, err := e.Events(ctx, w)
	if err != nil {
		return Summary{}, err
	}

	r, err := replayFn(ctx, events, w, ReplayOptions{CheckEvery: e.CheckEvery, Audit: e.Audit})
	if err != nil {
		return Summary{}, err
	}
	return Assemble(r, w, e.Policy), nil
}

type replayer func(context.Context, []Event, Window, ReplayOptions) (Replay, error)

func replayerFor(m Method) (replayer, error) {
	switch m {
	case MethodWAC:
		return ReplayWAC, nil
	case MethodFIFO:
		return ReplayFIFO, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, string(m))
}
