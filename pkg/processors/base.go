package processors

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cascade-stream/cascade/pkg/errors"
	"github.com/cascade-stream/cascade/pkg/frames"
)

// BaseProcessor provides the shared state and bookkeeping for frame
// processors. Embed it in custom processor implementations and call its
// ProcessFrame at the start of your own.
type BaseProcessor struct {
	name   string
	prev   FrameProcessor
	next   FrameProcessor
	logger *zap.Logger
}

// NewBaseProcessor creates a base processor with the given name. An
// empty name gets a generated one so metrics keys stay unique.
func NewBaseProcessor(name string) BaseProcessor {
	if name == "" {
		name = fmt.Sprintf("processor#%s", uuid.NewString()[:8])
	}
	return BaseProcessor{
		name:   name,
		logger: zap.NewNop(),
	}
}

// Name returns the processor's stable identifier.
func (b *BaseProcessor) Name() string {
	return b.name
}

// SetLogger replaces the processor's logger. The default is a no-op.
func (b *BaseProcessor) SetLogger(logger *zap.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Logger returns the processor's logger.
func (b *BaseProcessor) Logger() *zap.Logger {
	return b.logger
}

// ProcessFrame is the mandatory pre-processing step shared by all
// processors. Implementations call it first from their own ProcessFrame.
func (b *BaseProcessor) ProcessFrame(ctx context.Context, frame frames.Frame, direction Direction) error {
	if frame == nil {
		return errors.ErrNilFrame
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.logger.Debug("processing frame",
		zap.String("processor", b.name),
		zap.String("frame", frame.Name()),
		zap.Stringer("direction", direction))
	return nil
}

// PushFrame forwards a frame to the neighbor in the given direction. At
// an unlinked end of a chain the frame goes nowhere.
func (b *BaseProcessor) PushFrame(ctx context.Context, frame frames.Frame, direction Direction) error {
	var target FrameProcessor
	switch direction {
	case Downstream:
		target = b.next
	case Upstream:
		target = b.prev
	}
	if target == nil {
		b.logger.Debug("dropping frame at chain end",
			zap.String("processor", b.name),
			zap.String("frame", frame.Name()),
			zap.Stringer("direction", direction))
		return nil
	}
	return target.ProcessFrame(ctx, frame, direction)
}

// Cleanup releases processor resources. The base implementation holds
// none.
func (b *BaseProcessor) Cleanup(ctx context.Context) error {
	return nil
}

// CanGenerateMetrics reports false; metrics-capable processors shadow it.
func (b *BaseProcessor) CanGenerateMetrics() bool {
	return false
}

func (b *BaseProcessor) setNext(next FrameProcessor)       { b.next = next }
func (b *BaseProcessor) setPrevious(prev FrameProcessor)   { b.prev = prev }
func (b *BaseProcessor) nextProcessor() FrameProcessor     { return b.next }
func (b *BaseProcessor) previousProcessor() FrameProcessor { return b.prev }
