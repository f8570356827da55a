// Package textnorm provides a leaf processor that normalizes the text of
// text frames. All other frames pass through unchanged.
package textnorm

import (
	"context"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/cascade-stream/cascade/pkg/frames"
	"github.com/cascade-stream/cascade/pkg/processors"
)

// Config holds configuration for the normalizer.
type Config struct {
	// Form is the Unicode normalization form: "NFC" (default), "NFD",
	// "NFKC" or "NFKD".
	Form string

	// Lowercase additionally lowercases the text using Unicode case
	// mapping.
	Lowercase bool
}

// Processor normalizes text frames traveling downstream.
type Processor struct {
	processors.BaseProcessor

	form      norm.Form
	lowercase bool
	caser     cases.Caser
}

// New creates a text normalization processor.
func New(name string, config Config) (*Processor, error) {
	form, err := parseForm(config.Form)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		BaseProcessor: processors.NewBaseProcessor(name),
		form:          form,
		lowercase:     config.Lowercase,
	}
	if config.Lowercase {
		p.caser = cases.Lower(language.Und)
	}
	return p, nil
}

// ProcessFrame implements processors.FrameProcessor. Downstream text
// frames are replaced by a normalized copy; everything else is pushed
// onward untouched.
func (p *Processor) ProcessFrame(ctx context.Context, frame frames.Frame, direction processors.Direction) error {
	if err := p.BaseProcessor.ProcessFrame(ctx, frame, direction); err != nil {
		return err
	}

	if text, ok := frame.(*frames.TextFrame); ok && direction == processors.Downstream {
		normalized := p.form.String(text.Text)
		if p.lowercase {
			normalized = p.caser.String(normalized)
		}
		return p.PushFrame(ctx, frames.NewTextFrame(normalized), direction)
	}

	return p.PushFrame(ctx, frame, direction)
}

func parseForm(form string) (norm.Form, error) {
	switch form {
	case "", "NFC":
		return norm.NFC, nil
	case "NFD":
		return norm.NFD, nil
	case "NFKC":
		return norm.NFKC, nil
	case "NFKD":
		return norm.NFKD, nil
	default:
		return norm.NFC, fmt.Errorf("unknown normalization form: %q", form)
	}
}
