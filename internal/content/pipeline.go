package content

import (
	"context"
	"fmt"

	"github.com/unnamedteam/docserver/internal/domain"
)

// FileContext identifies the page being processed
type FileContext struct {
	Repository domain.Repository
	Version    domain.Version
	File       domain.Entry
}

// Processor transforms the text of a documentation page
type Processor interface {
	Process(ctx context.Context, text string, fc FileContext) (string, error)
}

// ProcessorFunc adapts a function to the Processor interface
type ProcessorFunc func(ctx context.Context, text string, fc FileContext) (string, error)

func (f ProcessorFunc) Process(ctx context.Context, text string, fc FileContext) (string, error) {
	return f(ctx, text, fc)
}

// Pipeline runs processors strictly in order, feeding each one the output
// of the previous
type Pipeline struct {
	processors []Processor
}

// NewPipeline creates a pipeline from an ordered list of processors
func NewPipeline(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Process runs text through every processor
func (p *Pipeline) Process(ctx context.Context, text string, fc FileContext) (string, error) {
	for i, proc := range p.processors {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := proc.Process(ctx, text, fc)
		if err != nil {
			return "", fmt.Errorf("stage %d failed for %s@%s:%s: %w",
				i, fc.Repository.FullName, fc.Version.Version, fc.File.Path, err)
		}
		text = out
	}
	return text, nil
}
