// Package task drives a pipeline: it owns the frame queue feeding the
// pipeline, emits the start and end control frames, observes frames that
// exit the pipeline upstream, and wires tracing and error reporting
// around frame delivery.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	internaltracing "github.com/cascade-stream/cascade/internal/tracing"
	cerrors "github.com/cascade-stream/cascade/pkg/errors"
	"github.com/cascade-stream/cascade/pkg/frames"
	"github.com/cascade-stream/cascade/pkg/pipeline"
	"github.com/cascade-stream/cascade/pkg/processors"
)

const defaultQueueSize = 64

// Option configures a Task.
type Option func(*Task)

// WithLogger sets the task logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithQueueSize sets the capacity of the frame queue.
func WithQueueSize(size int) Option {
	return func(t *Task) {
		if size > 0 {
			t.queueSize = size
		}
	}
}

// WithTracing enables OpenTelemetry tracing for the task. The exporter
// is set up when the task is created and shut down by Shutdown.
func WithTracing(config TracingConfig) Option {
	return func(t *Task) {
		t.tracingConfig = &config
	}
}

// WithSentry enables Sentry capture of error frames that reach the top
// of the pipeline.
func WithSentry(dsn string) Option {
	return func(t *Task) {
		t.sentryDSN = dsn
	}
}

// Task runs a pipeline. Frames queued on the task are delivered to the
// pipeline downstream in submission order by a single goroutine, which
// provides the single-writer discipline the pipeline assumes. A task
// runs at most once.
type Task struct {
	proc   processors.FrameProcessor
	source *pipeline.Source
	queue  chan frames.Frame
	stop   chan struct{}

	logger          *zap.Logger
	tracer          trace.Tracer
	tracingConfig   *TracingConfig
	tracingShutdown func(context.Context) error
	sentryDSN       string
	sentryEnabled   bool

	queueSize int
	running   atomic.Bool
	stopOnce  sync.Once
}

// New creates a task driving the given pipeline (or any frame
// processor). The task links an internal source above the processor so
// frames exiting the pipeline upstream reach the task's handler.
func New(proc processors.FrameProcessor, opts ...Option) (*Task, error) {
	if proc == nil {
		return nil, cerrors.ErrNilProcessor
	}

	t := &Task{
		proc:      proc,
		logger:    zap.NewNop(),
		queueSize: defaultQueueSize,
		tracer:    otel.Tracer("cascade/task"),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.queue = make(chan frames.Frame, t.queueSize)
	t.stop = make(chan struct{})

	t.source = pipeline.NewSource(t.handleUpstreamFrame)
	t.source.SetLogger(t.logger)
	processors.Link(t.source, proc)

	if t.tracingConfig != nil {
		shutdown, err := internaltracing.Setup(context.Background(), t.tracingConfig.toInternalConfig(), t.logger)
		if err != nil {
			t.logger.Warn("failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			t.tracingShutdown = shutdown
		}
	}

	if t.sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: t.sentryDSN}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
		t.sentryEnabled = true
	}

	return t, nil
}

// Queue submits frames for downstream delivery, in order. Frames may be
// queued before Run starts; they are delivered once it does.
func (t *Task) Queue(ctx context.Context, fs ...frames.Frame) error {
	for _, f := range fs {
		if f == nil {
			return cerrors.ErrNilFrame
		}
		select {
		case t.queue <- f:
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stop:
			return cerrors.ErrTaskNotRunning
		}
	}
	return nil
}

// StopWhenDone queues an end frame, so the task stops once every frame
// queued before it has been delivered.
func (t *Task) StopWhenDone(ctx context.Context) error {
	return t.Queue(ctx, frames.NewEndFrame())
}

// Cancel aborts the run immediately: a cancel frame is pushed downstream
// ahead of any queued frames, and the run loop exits.
func (t *Task) Cancel(ctx context.Context) error {
	if !t.running.Load() {
		return cerrors.ErrTaskNotRunning
	}
	err := t.source.ProcessFrame(ctx, frames.NewCancelFrame(), processors.Downstream)
	t.stopOnce.Do(func() { close(t.stop) })
	return err
}

// Run delivers a start frame and then drains the queue until an end
// frame has been delivered, the task is cancelled, or the context ends.
// It blocks for the full duration of each traversal, so queued frames
// reach the pipeline strictly in submission order.
func (t *Task) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return cerrors.ErrTaskAlreadyRunning
	}

	ctx, span := t.tracer.Start(ctx, "task.run")
	defer span.End()

	t.logger.Info("task starting", zap.String("processor", t.proc.Name()))

	if err := t.deliver(ctx, frames.NewStartFrame()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deliver start frame: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "context cancelled")
			return ctx.Err()
		case <-t.stop:
			span.SetStatus(codes.Ok, "task cancelled")
			t.logger.Info("task cancelled")
			return nil
		case frame := <-t.queue:
			if err := t.deliver(ctx, frame); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("deliver %s: %w", frame.Name(), err)
			}
			if _, ok := frame.(*frames.EndFrame); ok {
				span.SetStatus(codes.Ok, "task finished")
				t.logger.Info("task finished")
				return nil
			}
		}
	}
}

// Shutdown releases pipeline resources and flushes tracing and error
// reporting. Call it after Run has returned.
func (t *Task) Shutdown(ctx context.Context) error {
	t.stopOnce.Do(func() { close(t.stop) })

	err := t.proc.Cleanup(ctx)
	if err != nil {
		t.logger.Error("pipeline cleanup failed", zap.Error(err))
	}

	if t.tracingShutdown != nil {
		if terr := internaltracing.Shutdown(t.tracingShutdown, t.logger); terr != nil && err == nil {
			err = terr
		}
	}
	if t.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
	return err
}

// deliver pushes a single frame downstream with a span around the full
// traversal it triggers.
func (t *Task) deliver(ctx context.Context, frame frames.Frame) error {
	ctx, span := t.tracer.Start(ctx, "task.deliverFrame",
		trace.WithAttributes(
			attribute.String("frame.id", frame.ID()),
			attribute.String("frame.name", frame.Name()),
		))
	defer span.End()

	start := time.Now()
	err := t.source.ProcessFrame(ctx, frame, processors.Downstream)
	span.SetAttributes(attribute.Int64("delivery.duration_ms", time.Since(start).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "frame delivered")
	return nil
}

// handleUpstreamFrame observes frames that exit the pipeline upstream.
// Error frames are logged and, when enabled, reported to Sentry; other
// frames terminate at the task.
func (t *Task) handleUpstreamFrame(ctx context.Context, frame frames.Frame, direction processors.Direction) error {
	switch f := frame.(type) {
	case *frames.ErrorFrame:
		t.logger.Error("pipeline reported error",
			zap.String("error", f.Error),
			zap.Bool("fatal", f.Fatal))
		if t.sentryEnabled {
			sentry.CaptureMessage(f.Error)
		}
		if f.Fatal {
			t.stopOnce.Do(func() { close(t.stop) })
		}
	default:
		t.logger.Debug("upstream frame reached task",
			zap.String("frame", frame.Name()),
			zap.Stringer("direction", direction))
	}
	return nil
}
