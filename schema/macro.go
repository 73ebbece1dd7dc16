package schema

// MacroBuilder declares a computed property backed by a callback.
type MacroBuilder struct {
	d Descriptor
}

// Macro declares a computed property. The callback receives the owning
// instance and must be side-effect free.
func Macro(name string, fn MacroFunc) *MacroBuilder {
	return &MacroBuilder{d: Descriptor{
		Name:    name,
		IsMacro: true,
		Macro:   fn,
	}}
}

// Cached memoizes the macro result per instance until the next save or reload.
func (b *MacroBuilder) Cached() *MacroBuilder {
	b.d.MacroCached = true
	return b
}

// Hidden excludes the macro from serialization by default.
func (b *MacroBuilder) Hidden() *MacroBuilder {
	b.d.Hidden = true
	return b
}

// Alias sets an external-facing alias for the macro.
func (b *MacroBuilder) Alias(alias string) *MacroBuilder {
	b.d.Alias = alias
	b.d.AliasSet = true
	return b
}

// Descriptor returns the built descriptor.
func (b *MacroBuilder) Descriptor() *Descriptor {
	d := b.d
	return &d
}
