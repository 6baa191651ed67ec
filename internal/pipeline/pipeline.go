// Package pipeline chains the checking stages over a shared context. Stages
// never abort the run: a failed stage records what it can and the rest still
// execute, so one invocation collects every diagnostic it is able to produce.
package pipeline

// Processor is one stage.
type Processor interface {
	Process(ctx *Context) *Context
}

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline.
func (p *Pipeline) Run(initialCtx *Context) *Context {
	ctx := initialCtx
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
		// Continue on errors to collect diagnostics from all stages.
	}
	return ctx
}

// Check is the standard constrain-then-solve pipeline.
func Check(ctx *Context) *Context {
	return New(ConstrainStage{}, SolveStage{}).Run(ctx)
}
