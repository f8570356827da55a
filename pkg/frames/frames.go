// Package frames defines the frame types routed through a pipeline.
// Frames are either data frames carrying payloads between processors or
// control frames steering the pipeline lifecycle.
package frames

import (
	"fmt"

	"github.com/google/uuid"
)

// Frame is the atomic unit of data or control routed through a pipeline.
// Concrete frame types embed BaseFrame, which supplies identity.
type Frame interface {
	// ID returns the unique identifier of this frame instance.
	ID() string

	// Name returns a short human-readable name used in logs and traces.
	Name() string
}

// BaseFrame provides identity for concrete frame types.
// Embed it in custom frame implementations.
type BaseFrame struct {
	id   string
	name string
}

// NewBaseFrame creates a base frame with a fresh identifier.
func NewBaseFrame(name string) BaseFrame {
	return BaseFrame{
		id:   uuid.NewString(),
		name: name,
	}
}

// ID returns the unique identifier of this frame instance.
func (f BaseFrame) ID() string {
	return f.id
}

// Name returns the frame's human-readable name.
func (f BaseFrame) Name() string {
	return f.name
}

// String implements fmt.Stringer.
func (f BaseFrame) String() string {
	return fmt.Sprintf("%s(%s)", f.name, f.id)
}

// StartFrame marks the beginning of active processing. It is the first
// frame a pipeline sees after construction.
type StartFrame struct {
	BaseFrame
}

// NewStartFrame creates a start frame.
func NewStartFrame() *StartFrame {
	return &StartFrame{BaseFrame: NewBaseFrame("StartFrame")}
}

// EndFrame signals the orderly end of processing. Processors finish any
// in-flight work when they observe it.
type EndFrame struct {
	BaseFrame
}

// NewEndFrame creates an end frame.
func NewEndFrame() *EndFrame {
	return &EndFrame{BaseFrame: NewBaseFrame("EndFrame")}
}

// CancelFrame aborts processing immediately, skipping any draining an
// EndFrame would allow.
type CancelFrame struct {
	BaseFrame
}

// NewCancelFrame creates a cancel frame.
func NewCancelFrame() *CancelFrame {
	return &CancelFrame{BaseFrame: NewBaseFrame("CancelFrame")}
}

// TextFrame carries a chunk of text between processors.
type TextFrame struct {
	BaseFrame

	// Text is the payload.
	Text string
}

// NewTextFrame creates a text frame with the given payload.
func NewTextFrame(text string) *TextFrame {
	return &TextFrame{
		BaseFrame: NewBaseFrame("TextFrame"),
		Text:      text,
	}
}

// ErrorFrame reports a processing failure upstream so the pipeline
// owner can observe it.
type ErrorFrame struct {
	BaseFrame

	// Error is the failure description.
	Error string

	// Fatal indicates the pipeline cannot continue.
	Fatal bool
}

// NewErrorFrame creates an error frame with the given description.
func NewErrorFrame(errMsg string, fatal bool) *ErrorFrame {
	return &ErrorFrame{
		BaseFrame: NewBaseFrame("ErrorFrame"),
		Error:     errMsg,
		Fatal:     fatal,
	}
}

// MetricsFrame carries per-processor metric values downstream. TTFB maps
// a processor name to its time-to-first-byte value in seconds; a
// pipeline emits a zeroed baseline when it starts so consumers observe
// every metrics-capable processor before real values arrive.
type MetricsFrame struct {
	BaseFrame

	// TTFB maps processor names to time-to-first-byte seconds.
	TTFB map[string]float64
}

// NewMetricsFrame creates a metrics frame with the given TTFB values.
func NewMetricsFrame(ttfb map[string]float64) *MetricsFrame {
	return &MetricsFrame{
		BaseFrame: NewBaseFrame("MetricsFrame"),
		TTFB:      ttfb,
	}
}
