// Package processors defines the frame processor contract and the shared
// base implementation every processor builds on. Processors are linked
// into bidirectional chains by a pipeline; frames traverse the chain as
// a single ordered synchronous call sequence.
package processors

import (
	"context"

	"github.com/cascade-stream/cascade/pkg/frames"
)

// Direction indicates which way a frame travels through a chain.
type Direction int

const (
	// Downstream moves frames toward the tail (output side) of the chain.
	Downstream Direction = iota

	// Upstream moves frames toward the head (input side) of the chain.
	Upstream
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Downstream:
		return "downstream"
	case Upstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// FrameProcessor is the contract every chain element satisfies.
//
// Implementations embed BaseProcessor and override ProcessFrame. Every
// ProcessFrame implementation must call the embedded
// BaseProcessor.ProcessFrame first; it performs the bookkeeping shared
// by all processors before the processor's own logic runs.
//
// ProcessFrame blocks until the traversal it triggers completes, so two
// frames submitted in sequence by the same caller are delivered to the
// chain in submission order. Neighbor links are established exactly once
// via Link during chain construction and are read-only afterwards.
type FrameProcessor interface {
	// Name returns the processor's stable identifier, used as a metrics key.
	Name() string

	// ProcessFrame handles a frame traveling in the given direction.
	// A returned error aborts the in-flight traversal and propagates to
	// the caller; this layer performs no retries or recovery.
	ProcessFrame(ctx context.Context, frame frames.Frame, direction Direction) error

	// Cleanup releases any resources held by the processor. It is called
	// exactly once, after the owner guarantees no further frames will be
	// routed through the chain.
	Cleanup(ctx context.Context) error

	// CanGenerateMetrics reports whether the processor produces metric
	// values that belong in a pipeline's baseline metrics frame.
	CanGenerateMetrics() bool

	// Adjacency is managed through Link and satisfied by embedding
	// BaseProcessor.
	setNext(next FrameProcessor)
	setPrevious(prev FrameProcessor)
	nextProcessor() FrameProcessor
	previousProcessor() FrameProcessor
}

// Composite is a processor built from child processors, such as a
// pipeline. It exposes its metrics-capable descendants so nested
// composites can be discovered without runtime reflection.
type Composite interface {
	FrameProcessor

	// ProcessorsWithMetrics returns the metrics-capable processors in
	// chain order, with nested composites flattened in place.
	ProcessorsWithMetrics() []FrameProcessor
}

// PushFunc bridges frames out of a chain to its enclosing context.
// Boundary processors invoke it when a frame exits the chain.
type PushFunc func(ctx context.Context, frame frames.Frame, direction Direction) error

// Link wires prev and next as immediate neighbors, establishing both
// adjacency directions in a single operation. Links are set exactly once
// during chain construction and never mutated afterwards.
func Link(prev, next FrameProcessor) {
	prev.setNext(next)
	next.setPrevious(prev)
}
