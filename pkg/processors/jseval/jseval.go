// Package jseval provides a leaf processor that transforms text frames
// with a user-supplied JavaScript function. The script must define
// transform(text), which returns the replacement text.
package jseval

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/cascade-stream/cascade/pkg/frames"
	"github.com/cascade-stream/cascade/pkg/processors"
)

// Config holds configuration for the JavaScript evaluator.
type Config struct {
	// Script is the JavaScript source. It must define a global function
	// transform(text) returning a string.
	Script string
}

// Processor applies a JavaScript transform to downstream text frames.
// The runtime is guarded by a mutex, so a single processor instance may
// appear in at most one chain.
type Processor struct {
	processors.BaseProcessor

	vm        *goja.Runtime
	transform goja.Callable
	mu        sync.Mutex
}

// New creates a JavaScript transform processor by compiling and running
// the configured script in a restricted runtime.
func New(name string, config Config) (*Processor, error) {
	if config.Script == "" {
		return nil, fmt.Errorf("script cannot be empty")
	}

	vm := goja.New()
	if err := restrictGlobals(vm); err != nil {
		return nil, fmt.Errorf("failed to restrict runtime: %w", err)
	}

	if _, err := vm.RunString(config.Script); err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}

	transform, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return nil, fmt.Errorf("script must define a transform function")
	}

	return &Processor{
		BaseProcessor: processors.NewBaseProcessor(name),
		vm:            vm,
		transform:     transform,
	}, nil
}

// ProcessFrame implements processors.FrameProcessor. Downstream text
// frames are replaced by the transform's result; everything else is
// pushed onward untouched.
func (p *Processor) ProcessFrame(ctx context.Context, frame frames.Frame, direction processors.Direction) error {
	if err := p.BaseProcessor.ProcessFrame(ctx, frame, direction); err != nil {
		return err
	}

	if text, ok := frame.(*frames.TextFrame); ok && direction == processors.Downstream {
		result, err := p.eval(text.Text)
		if err != nil {
			return fmt.Errorf("transform failed in %s: %w", p.Name(), err)
		}
		return p.PushFrame(ctx, frames.NewTextFrame(result), direction)
	}

	return p.PushFrame(ctx, frame, direction)
}

func (p *Processor) eval(text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	value, err := p.transform(goja.Undefined(), p.vm.ToValue(text))
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// restrictGlobals removes Node-style globals so scripts stay pure text
// transforms.
func restrictGlobals(vm *goja.Runtime) error {
	for _, name := range []string{"require", "module", "exports", "process", "global"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}
