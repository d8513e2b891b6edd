package translit

// Host is the text field the engine edits. SetValue must replace the value
// and move the caret as one operation.
type Host interface {
	Value() string
	Caret() int
	SetValue(value string, caret int)
}

// Field binds an Engine and a per-field State to a Host.
type Field struct {
	engine *Engine
	host   Host
	state  *State

	stale          bool
	settleOnCommit bool
}

// FieldOption configures a Field.
type FieldOption func(*Field)

// WithSettleOnCommit makes Commit strip typing markers from the host value.
func WithSettleOnCommit(settle bool) FieldOption {
	return func(f *Field) {
		f.settleOnCommit = settle
	}
}

// NewField creates a field reading its initial content from host.
func NewField(engine *Engine, host Host, opts ...FieldOption) *Field {
	f := &Field{
		engine:         engine,
		host:           host,
		state:          NewState(host.Value(), host.Caret()),
		settleOnCommit: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// HandleKey dispatches ev. When the outcome is claimed the new value has
// already been written to the host and the host must suppress its default
// action; otherwise the host handles the key natively.
func (f *Field) HandleKey(ev KeyEvent) Outcome {
	f.sync()

	out := f.engine.Dispatch(f.state, ev)
	switch {
	case !out.Claimed():
		f.stale = true
	case !out.Aborted:
		f.host.SetValue(f.state.Buffer.Value(), f.state.Buffer.Caret())
	}
	return out
}

// Resync rereads the host into the shadow buffer.
func (f *Field) Resync() {
	f.state.Buffer.Reset(f.host.Value(), f.host.Caret())
	f.stale = false
}

// Focus is called when the field gains focus. The previous key no longer
// counts towards a vowel sequence.
func (f *Field) Focus() {
	f.Resync()
	f.state.Tracker.Reset()
}

// Commit finishes typing in the field and returns its value. With settling
// enabled, stray markers are removed from the host value first.
func (f *Field) Commit() string {
	f.Resync()
	f.state.Tracker.Reset()
	if !f.settleOnCommit {
		return f.host.Value()
	}
	value, caret := SettleAt(f.host.Value(), f.host.Caret())
	if value != f.host.Value() {
		f.host.SetValue(value, caret)
		f.state.Buffer.Reset(value, caret)
	}
	return value
}

// Value returns the host value.
func (f *Field) Value() string {
	return f.host.Value()
}

// State returns the field's engine state.
func (f *Field) State() *State {
	return f.state
}

// sync rereads the host after a native edit, or when the host was changed
// behind the engine's back (paste, caret movement).
func (f *Field) sync() {
	if f.stale || f.host.Caret() != f.state.Buffer.Caret() || f.host.Value() != f.state.Buffer.Value() {
		f.Resync()
	}
}
