package pipeline

import (
	"firestige.xyz/usbrevue/internal/filter"
	"firestige.xyz/usbrevue/internal/rule"
)

// Builder provides a fluent interface for building modifiers.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new modifier builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			Rules:      rule.NewSet(),
			BufferSize: 256,
		},
	}
}

// WithRules appends rules to the rule set.
func (b *Builder) WithRules(rules ...rule.Rule) *Builder {
	b.config.Rules.Add(rules...)
	return b
}

// WithFilter sets the record selector.
func (b *Builder) WithFilter(f *filter.Filter) *Builder {
	b.config.Filter = f
	return b
}

// WithOnError sets the error policy.
func (b *Builder) WithOnError(policy string) *Builder {
	b.config.OnError = policy
	return b
}

// WithVerbose enables per-field change logging.
func (b *Builder) WithVerbose(v bool) *Builder {
	b.config.Verbose = v
	return b
}

// WithBufferSize sets the read-ahead channel size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// WithCommand sets the metrics label.
func (b *Builder) WithCommand(name string) *Builder {
	b.config.Command = name
	return b
}

// Build creates the modifier.
func (b *Builder) Build() *Modifier {
	return New(b.config)
}
