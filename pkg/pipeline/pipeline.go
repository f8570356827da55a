// Package pipeline composes frame processors into a single composite
// processor. A pipeline owns an ordered chain [Source, processors...,
// Sink]; frames entering the pipeline are injected at the head when
// traveling downstream or at the tail when traveling upstream, and
// traverse the chain one processor at a time. A Pipeline satisfies the
// processor contract itself, so pipelines nest inside pipelines with no
// special-casing by the parent.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cascade-stream/cascade/pkg/frames"
	"github.com/cascade-stream/cascade/pkg/processors"
)

// Source is the synthetic head of a pipeline's chain. Frames traveling
// upstream exit the chain through it, handed to the enclosing context
// via the push callback supplied at construction; frames traveling
// downstream enter chain processing through it.
type Source struct {
	processors.BaseProcessor

	pushUpstream processors.PushFunc
}

// NewSource creates a pipeline source bridging upstream frames to the
// given callback.
func NewSource(pushUpstream processors.PushFunc) *Source {
	return &Source{
		BaseProcessor: processors.NewBaseProcessor("PipelineSource"),
		pushUpstream:  pushUpstream,
	}
}

// ProcessFrame implements processors.FrameProcessor.
func (s *Source) ProcessFrame(ctx context.Context, frame frames.Frame, direction processors.Direction) error {
	if err := s.BaseProcessor.ProcessFrame(ctx, frame, direction); err != nil {
		return err
	}

	switch direction {
	case processors.Upstream:
		return s.pushUpstream(ctx, frame, direction)
	case processors.Downstream:
		return s.PushFrame(ctx, frame, direction)
	}
	return nil
}

// Sink is the synthetic tail of a pipeline's chain, the symmetric
// counterpart of Source: downstream frames exit the chain through it,
// upstream frames enter chain processing through it.
type Sink struct {
	processors.BaseProcessor

	pushDownstream processors.PushFunc
}

// NewSink creates a pipeline sink bridging downstream frames to the
// given callback.
func NewSink(pushDownstream processors.PushFunc) *Sink {
	return &Sink{
		BaseProcessor:  processors.NewBaseProcessor("PipelineSink"),
		pushDownstream: pushDownstream,
	}
}

// ProcessFrame implements processors.FrameProcessor.
func (s *Sink) ProcessFrame(ctx context.Context, frame frames.Frame, direction processors.Direction) error {
	if err := s.BaseProcessor.ProcessFrame(ctx, frame, direction); err != nil {
		return err
	}

	switch direction {
	case processors.Upstream:
		return s.PushFrame(ctx, frame, direction)
	case processors.Downstream:
		return s.pushDownstream(ctx, frame, direction)
	}
	return nil
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by the pipeline and its boundary
// processors. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables synthesis of a zeroed baseline metrics frame when
// the pipeline observes a start frame.
func WithMetrics(enabled bool) Option {
	return func(p *Pipeline) {
		p.enableMetrics = enabled
	}
}

// Pipeline is a composite processor owning an ordered chain of child
// processors between a Source and a Sink. The chain is built once at
// construction and is read-only afterwards; Cleanup is the only
// lifecycle operation and must not run concurrently with routing.
type Pipeline struct {
	processors.BaseProcessor

	source *Source
	sink   *Sink
	chain  []processors.FrameProcessor

	enableMetrics bool
	logger        *zap.Logger
}

// New builds a pipeline from the given processors, in order. An empty
// processor list is valid: the chain collapses to [Source, Sink] and
// frames pass straight through.
//
// The source and sink bridge exiting frames to the pipeline's own
// neighbors, so a nested pipeline is indistinguishable from a leaf
// processor from its parent's perspective.
func New(procs []processors.FrameProcessor, opts ...Option) *Pipeline {
	p := &Pipeline{
		BaseProcessor: processors.NewBaseProcessor("Pipeline"),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.SetLogger(p.logger)

	p.source = NewSource(p.PushFrame)
	p.sink = NewSink(p.PushFrame)
	p.source.SetLogger(p.logger)
	p.sink.SetLogger(p.logger)

	p.chain = make([]processors.FrameProcessor, 0, len(procs)+2)
	p.chain = append(p.chain, p.source)
	p.chain = append(p.chain, procs...)
	p.chain = append(p.chain, p.sink)

	p.linkProcessors()

	p.logger.Debug("pipeline built",
		zap.String("pipeline", p.Name()),
		zap.Int("processors", len(procs)))

	return p
}

// ProcessorsWithMetrics returns the metrics-capable processors in the
// chain, in order. Nested composites are expanded in place, depth-first
// and left to right; boundary processors are never metrics-capable.
func (p *Pipeline) ProcessorsWithMetrics() []processors.FrameProcessor {
	var capable []processors.FrameProcessor
	for _, proc := range p.chain {
		if composite, ok := proc.(processors.Composite); ok {
			capable = append(capable, composite.ProcessorsWithMetrics()...)
		} else if proc.CanGenerateMetrics() {
			capable = append(capable, proc)
		}
	}
	return capable
}

// ProcessFrame implements processors.FrameProcessor. Downstream frames
// are injected at the head of the chain and traverse every processor in
// order; upstream frames are injected at the tail and traverse the chain
// in reverse. A start frame additionally triggers the baseline metrics
// frame when metrics are enabled, delivered ahead of the start frame
// itself.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame frames.Frame, direction processors.Direction) error {
	if err := p.BaseProcessor.ProcessFrame(ctx, frame, direction); err != nil {
		return err
	}

	if _, ok := frame.(*frames.StartFrame); ok && p.enableMetrics {
		if err := p.sendInitialMetrics(ctx); err != nil {
			return fmt.Errorf("send initial metrics: %w", err)
		}
	}

	switch direction {
	case processors.Downstream:
		return p.source.ProcessFrame(ctx, frame, processors.Downstream)
	case processors.Upstream:
		return p.sink.ProcessFrame(ctx, frame, processors.Upstream)
	}
	return nil
}

// Cleanup releases every processor in the chain, boundary processors
// included, in construction order. It keeps going past failing
// processors and returns the aggregated errors, so a failure early in
// the chain cannot leak resources held further down.
func (p *Pipeline) Cleanup(ctx context.Context) error {
	var errs error
	for _, proc := range p.chain {
		if err := proc.Cleanup(ctx); err != nil {
			p.logger.Warn("processor cleanup failed",
				zap.String("pipeline", p.Name()),
				zap.String("processor", proc.Name()),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("cleanup %s: %w", proc.Name(), err))
		}
	}
	return errs
}

// linkProcessors wires consecutive chain elements in a single pass,
// establishing both adjacency directions per pair.
func (p *Pipeline) linkProcessors() {
	prev := p.chain[0]
	for _, curr := range p.chain[1:] {
		processors.Link(prev, curr)
		prev = curr
	}
}

// sendInitialMetrics injects a zeroed TTFB baseline for every
// metrics-capable descendant at the head of the chain, so downstream
// consumers observe the full processor set before real values arrive.
func (p *Pipeline) sendInitialMetrics(ctx context.Context) error {
	capable := p.ProcessorsWithMetrics()
	ttfb := make(map[string]float64, len(capable))
	for _, proc := range capable {
		ttfb[proc.Name()] = 0
	}
	return p.source.ProcessFrame(ctx, frames.NewMetricsFrame(ttfb), processors.Downstream)
}
