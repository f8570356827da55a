package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-stream/cascade/pkg/frames"
	"github.com/cascade-stream/cascade/pkg/processors"
)

// recordedFrame captures one frame observation during a traversal.
type recordedFrame struct {
	processor string
	frame     frames.Frame
	direction processors.Direction
}

// recorder is a pass-through processor that appends every observed frame
// to a log shared across the chain, so tests can assert global order.
type recorder struct {
	processors.BaseProcessor

	log            *[]recordedFrame
	cleanupLog     *[]string
	cleanupErr     error
	metricsCapable bool
	processErr     error
}

func newRecorder(name string, log *[]recordedFrame) *recorder {
	return &recorder{
		BaseProcessor: processors.NewBaseProcessor(name),
		log:           log,
	}
}

func (r *recorder) ProcessFrame(ctx context.Context, frame frames.Frame, direction processors.Direction) error {
	if err := r.BaseProcessor.ProcessFrame(ctx, frame, direction); err != nil {
		return err
	}
	if r.processErr != nil {
		return r.processErr
	}
	if r.log != nil {
		*r.log = append(*r.log, recordedFrame{r.Name(), frame, direction})
	}
	return r.PushFrame(ctx, frame, direction)
}

func (r *recorder) Cleanup(ctx context.Context) error {
	if r.cleanupLog != nil {
		*r.cleanupLog = append(*r.cleanupLog, r.Name())
	}
	return r.cleanupErr
}

func (r *recorder) CanGenerateMetrics() bool {
	return r.metricsCapable
}

func seen(log []recordedFrame, processor string) []recordedFrame {
	var out []recordedFrame
	for _, e := range log {
		if e.processor == processor {
			out = append(out, e)
		}
	}
	return out
}

func TestNew_ChainOrder(t *testing.T) {
	a := newRecorder("a", nil)
	b := newRecorder("b", nil)

	p := New([]processors.FrameProcessor{a, b})

	require.Len(t, p.chain, 4)
	assert.Same(t, p.source, p.chain[0])
	assert.Same(t, a, p.chain[1])
	assert.Same(t, b, p.chain[2])
	assert.Same(t, p.sink, p.chain[3])
}

func TestNew_EmptyProcessors(t *testing.T) {
	p := New(nil)

	require.Len(t, p.chain, 2)
	assert.Same(t, p.source, p.chain[0])
	assert.Same(t, p.sink, p.chain[1])
}

func TestPipeline_ProcessFrame_DownstreamOrder(t *testing.T) {
	var log []recordedFrame
	a := newRecorder("a", &log)
	b := newRecorder("b", &log)
	c := newRecorder("c", &log)

	p := New([]processors.FrameProcessor{a, b, c})
	frame := frames.NewTextFrame("hello")

	err := p.ProcessFrame(context.Background(), frame, processors.Downstream)
	require.NoError(t, err)

	require.Len(t, log, 3)
	assert.Equal(t, "a", log[0].processor)
	assert.Equal(t, "b", log[1].processor)
	assert.Equal(t, "c", log[2].processor)
	for _, e := range log {
		assert.Same(t, frame, e.frame)
		assert.Equal(t, processors.Downstream, e.direction)
	}
}

func TestPipeline_ProcessFrame_UpstreamReverseOrder(t *testing.T) {
	var log []recordedFrame
	a := newRecorder("a", &log)
	b := newRecorder("b", &log)
	c := newRecorder("c", &log)

	p := New([]processors.FrameProcessor{a, b, c})

	err := p.ProcessFrame(context.Background(), frames.NewTextFrame("hello"), processors.Upstream)
	require.NoError(t, err)

	require.Len(t, log, 3)
	assert.Equal(t, "c", log[0].processor)
	assert.Equal(t, "b", log[1].processor)
	assert.Equal(t, "a", log[2].processor)
}

func TestPipeline_EmptyChain_FrameExitsDownstream(t *testing.T) {
	var log []recordedFrame
	p := New(nil)
	after := newRecorder("after", &log)
	processors.Link(p, after)

	err := p.ProcessFrame(context.Background(), frames.NewTextFrame("hello"), processors.Downstream)
	require.NoError(t, err)

	require.Len(t, log, 1)
	assert.Equal(t, "after", log[0].processor)
	assert.Equal(t, processors.Downstream, log[0].direction)
}

func TestPipeline_UpstreamFrame_ExitsToParent(t *testing.T) {
	var log []recordedFrame
	before := newRecorder("before", &log)
	inner := newRecorder("inner", &log)
	p := New([]processors.FrameProcessor{inner})
	processors.Link(before, p)

	err := p.ProcessFrame(context.Background(), frames.NewTextFrame("hello"), processors.Upstream)
	require.NoError(t, err)

	require.Len(t, log, 2)
	assert.Equal(t, "inner", log[0].processor)
	assert.Equal(t, "before", log[1].processor)
	assert.Equal(t, processors.Upstream, log[1].direction)
}

func TestPipeline_Nested_TransparentBothDirections(t *testing.T) {
	var log []recordedFrame
	a := newRecorder("a", &log)
	x := newRecorder("x", &log)
	b := newRecorder("b", &log)

	inner := New([]processors.FrameProcessor{x})
	outer := New([]processors.FrameProcessor{a, inner, b})

	err := outer.ProcessFrame(context.Background(), frames.NewTextFrame("down"), processors.Downstream)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, []string{"a", "x", "b"}, []string{log[0].processor, log[1].processor, log[2].processor})

	log = log[:0]
	err = outer.ProcessFrame(context.Background(), frames.NewTextFrame("up"), processors.Upstream)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, []string{"b", "x", "a"}, []string{log[0].processor, log[1].processor, log[2].processor})
}

func TestPipeline_ProcessorsWithMetrics_NestedFlattened(t *testing.T) {
	a := newRecorder("a", nil)
	a.metricsCapable = true
	b := newRecorder("b", nil)
	d := newRecorder("d", nil)
	d.metricsCapable = true

	inner := New([]processors.FrameProcessor{d})
	outer := New([]processors.FrameProcessor{a, b, inner})

	capable := outer.ProcessorsWithMetrics()
	require.Len(t, capable, 2)
	assert.Equal(t, "a", capable[0].Name())
	assert.Equal(t, "d", capable[1].Name())

	// Repeated calls return the same ordered sequence.
	again := outer.ProcessorsWithMetrics()
	require.Len(t, again, 2)
	assert.Same(t, capable[0], again[0])
	assert.Same(t, capable[1], again[1])
}

func TestPipeline_StartFrame_MetricsBaselinePrecedesStart(t *testing.T) {
	var log []recordedFrame
	a := newRecorder("a", &log)
	a.metricsCapable = true
	b := newRecorder("b", &log)
	d := newRecorder("d", &log)
	d.metricsCapable = true

	inner := New([]processors.FrameProcessor{d})
	outer := New([]processors.FrameProcessor{a, b, inner}, WithMetrics(true))

	err := outer.ProcessFrame(context.Background(), frames.NewStartFrame(), processors.Downstream)
	require.NoError(t, err)

	observed := seen(log, "b")
	require.Len(t, observed, 2)

	metrics, ok := observed[0].frame.(*frames.MetricsFrame)
	require.True(t, ok, "metrics baseline must arrive before the start frame")
	assert.Equal(t, map[string]float64{"a": 0, "d": 0}, metrics.TTFB)

	_, ok = observed[1].frame.(*frames.StartFrame)
	assert.True(t, ok)
}

func TestPipeline_StartFrame_NoMetricsWhenDisabled(t *testing.T) {
	var log []recordedFrame
	a := newRecorder("a", &log)
	a.metricsCapable = true

	p := New([]processors.FrameProcessor{a})

	err := p.ProcessFrame(context.Background(), frames.NewStartFrame(), processors.Downstream)
	require.NoError(t, err)

	require.Len(t, log, 1)
	_, ok := log[0].frame.(*frames.StartFrame)
	assert.True(t, ok)
}

func TestPipeline_Cleanup_OrderAndAggregation(t *testing.T) {
	var cleanups []string
	a := newRecorder("a", nil)
	b := newRecorder("b", nil)
	c := newRecorder("c", nil)
	for _, r := range []*recorder{a, b, c} {
		r.cleanupLog = &cleanups
	}
	a.cleanupErr = errors.New("a failed")
	c.cleanupErr = errors.New("c failed")

	p := New([]processors.FrameProcessor{a, b, c})

	err := p.Cleanup(context.Background())
	require.Error(t, err)

	// Every processor is cleaned exactly once, head to tail, even though
	// the first one failed.
	assert.Equal(t, []string{"a", "b", "c"}, cleanups)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "c failed")
}

func TestPipeline_ProcessFrame_ErrorAbortsTraversal(t *testing.T) {
	var log []recordedFrame
	a := newRecorder("a", &log)
	b := newRecorder("b", &log)
	b.processErr = errors.New("boom")
	c := newRecorder("c", &log)

	p := New([]processors.FrameProcessor{a, b, c})

	err := p.ProcessFrame(context.Background(), frames.NewTextFrame("hello"), processors.Downstream)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	require.Len(t, log, 1)
	assert.Equal(t, "a", log[0].processor)
}

func TestPipeline_ProcessFrame_NilFrame(t *testing.T) {
	p := New(nil)

	err := p.ProcessFrame(context.Background(), nil, processors.Downstream)
	assert.Error(t, err)
}
