package translit

import (
	"log/slog"
	"sync/atomic"
)

// Step identifies which dispatch rule handled a key event.
type Step uint8

const (
	StepIgnored          Step = iota + 1 // modifier filter
	StepExplicitHalant                   // halant key
	StepBackspaceCluster                 // Base+HALANT+ZWNJ removed as one unit
	StepBackspaceMarker                  // unit after a HALANT replaced by ZWNJ
	StepBackspaceNative                  // host deletes one unit
	StepTripleConjunct
	StepDoubleConjunct
	StepVowelSequence
	StepSingleKey
	StepFallback // host inserts the key
)

var stepNames = map[Step]string{
	StepIgnored:          "ignored",
	StepExplicitHalant:   "explicit-halant",
	StepBackspaceCluster: "backspace-cluster",
	StepBackspaceMarker:  "backspace-marker",
	StepBackspaceNative:  "backspace-native",
	StepTripleConjunct:   "triple-conjunct",
	StepDoubleConjunct:   "double-conjunct",
	StepVowelSequence:    "vowel-sequence",
	StepSingleKey:        "single-key",
	StepFallback:         "fallback",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Claimed reports whether the engine performed the edit itself. Unclaimed
// steps leave the key to the host's native handling.
func (s Step) Claimed() bool {
	switch s {
	case StepIgnored, StepBackspaceNative, StepFallback:
		return false
	default:
		return s != 0
	}
}

// Outcome describes how a key event was handled.
type Outcome struct {
	Step Step

	// Rule is the table rule that produced the edit, if any.
	Rule Rule

	// Text is the text spliced into the buffer.
	Text string

	// Aborted is set when the buffer rejected the edit. The buffer is
	// unchanged and the key still counts as claimed.
	Aborted bool
}

// Claimed reports whether the host must suppress its native handling.
func (o Outcome) Claimed() bool {
	return o.Step.Claimed()
}

// State is the per-field state the engine operates on. Each text field owns
// exactly one State; the engine itself holds none.
type State struct {
	Buffer  *Buffer
	Tracker Tracker
}

// NewState creates state for a field holding value with the caret at caret.
func NewState(value string, caret int) *State {
	return &State{Buffer: NewBuffer(value, caret)}
}

// Engine resolves key events against the mapping tables.
type Engine struct {
	tables      atomic.Pointer[Tables]
	halantKey   string
	placeholder rune
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTables sets the mapping tables.
func WithTables(t *Tables) Option {
	return func(e *Engine) {
		if t != nil {
			e.tables.Store(t)
		}
	}
}

// WithHalantKey sets the key that inserts an explicit HALANT.
func WithHalantKey(key string) Option {
	return func(e *Engine) {
		if key != "" {
			e.halantKey = key
		}
	}
}

// WithPlaceholder sets the glyph that hosts a vowel sign typed without a
// consonant. Defaults to DottedCircle.
func WithPlaceholder(r rune) Option {
	return func(e *Engine) {
		if r != 0 {
			e.placeholder = r
		}
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with the default tables and halant key.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		halantKey:   DefaultHalantKey,
		placeholder: DottedCircle,
		logger:      slog.Default(),
	}
	e.tables.Store(DefaultTables())
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tables returns the active tables.
func (e *Engine) Tables() *Tables {
	return e.tables.Load()
}

// SetTables swaps the active tables. Safe to call from another goroutine;
// the swap takes effect at the next Dispatch.
func (e *Engine) SetTables(t *Tables) {
	if t != nil {
		e.tables.Store(t)
	}
}

// HalantKey returns the explicit-halant key.
func (e *Engine) HalantKey() string {
	return e.halantKey
}

// Dispatch resolves one key event against st and applies the resulting edit
// to st.Buffer. Steps are tried in fixed priority order; the first match wins.
func (e *Engine) Dispatch(st *State, ev KeyEvent) Outcome {
	r := &resolution{
		engine: e,
		tables: e.Tables(),
		state:  st,
		event:  ev,
	}
	r.ctx = Classify(st.Buffer, r.tables)

	out := Outcome{Step: StepFallback}
	for _, step := range dispatchOrder {
		if o, ok := step(r); ok {
			out = o
			break
		}
	}

	if out.Claimed() {
		st.Tracker.Accept(ev.Key)
	} else {
		st.Tracker.Reset()
	}

	e.logger.Debug("key dispatched",
		"key", ev.String(),
		"step", out.Step.String(),
		"context", r.ctx.String(),
		"caret", st.Buffer.Caret(),
	)
	return out
}

type resolution struct {
	engine *Engine
	tables *Tables
	state  *State
	event  KeyEvent
	ctx    Context
}

var dispatchOrder = []func(*resolution) (Outcome, bool){
	(*resolution).filterModifiers,
	(*resolution).explicitHalant,
	(*resolution).backspace,
	(*resolution).tripleConjunct,
	(*resolution).doubleConjunct,
	(*resolution).vowelSequence,
	(*resolution).singleKey,
}

func (r *resolution) filterModifiers() (Outcome, bool) {
	mods := r.event.Modifiers
	if mods&(ModControl|ModAlt|ModMeta) != 0 {
		return Outcome{Step: StepIgnored}, true
	}
	if mods.Has(ModShift) && !(r.event.IsUpper() && r.tables.Mapped(r.event.Key)) {
		return Outcome{Step: StepIgnored}, true
	}
	return Outcome{}, false
}

func (r *resolution) explicitHalant() (Outcome, bool) {
	if r.event.Key != r.engine.halantKey {
		return Outcome{}, false
	}
	return r.insert(StepExplicitHalant, Rule{}, string([]rune{Halant, ZWNJ})), true
}

func (r *resolution) backspace() (Outcome, bool) {
	if !r.event.IsBackspace() {
		return Outcome{}, false
	}
	switch {
	case r.ctx.ConjunctPending():
		return r.replace(StepBackspaceCluster, Rule{}, 3, ""), true
	case r.ctx.HalantBeforeLast() && !r.ctx.LastIsMarker():
		return r.replace(StepBackspaceMarker, Rule{}, 1, string(ZWNJ)), true
	default:
		return Outcome{Step: StepBackspaceNative}, true
	}
}

func (r *resolution) tripleConjunct() (Outcome, bool) {
	pair, ok := r.ctx.PrecedingPair()
	if !ok {
		return Outcome{}, false
	}
	rule, ok := r.tables.Lookup(TripleConjunct, r.event.Key, pair)
	if !ok {
		return Outcome{}, false
	}
	return r.replace(StepTripleConjunct, rule, rule.Remove, pending(rule.Result)), true
}

func (r *resolution) doubleConjunct() (Outcome, bool) {
	base, ok := r.ctx.PrecedingConsonant()
	if !ok {
		return Outcome{}, false
	}
	rule, ok := r.tables.Lookup(DoubleConjunct, r.event.Key, base)
	if !ok {
		return Outcome{}, false
	}
	return r.replace(StepDoubleConjunct, rule, rule.Remove, pending(rule.Result)), true
}

func (r *resolution) vowelSequence() (Outcome, bool) {
	seq, ok := r.state.Tracker.Sequence(r.event.Key, r.tables)
	if !ok {
		return Outcome{}, false
	}

	if text, ok := r.tables.Replacement(r.ctx.Last(), r.event.Key); ok {
		if r.ctx.AfterIndependentVowel() {
			r.engine.logger.Debug("lengthening independent vowel", "sequence", seq, "result", text)
		}
		return r.replace(StepVowelSequence, Rule{Trigger: seq}, 1, text), true
	}

	inCluster := r.ctx.ConjunctPending()
	if dep, ok := r.tables.Dependent(seq); ok && inCluster {
		return r.replace(StepVowelSequence, dep, 2, dep.Result), true
	}
	if ind, ok := r.tables.Independent(seq); ok && !inCluster {
		return r.insert(StepVowelSequence, ind, ind.Result), true
	}
	return Outcome{}, false
}

func (r *resolution) singleKey() (Outcome, bool) {
	key := r.event.Key
	dep, hasDep := r.tables.Dependent(key)
	cons, hasCons := r.tables.Consonant(key)
	ind, hasInd := r.tables.Independent(key)

	if r.ctx.ConjunctPending() {
		switch {
		case hasDep:
			return r.replace(StepSingleKey, dep, 2, dep.Result), true
		case hasCons:
			// Only the ZWNJ goes; the HALANT stays and joins the stack.
			return r.replace(StepSingleKey, cons, 1, pending(cons.Result)), true
		case hasInd:
			return r.replace(StepSingleKey, ind, 2, ind.Result), true
		}
		return Outcome{}, false
	}

	switch {
	case hasInd:
		return r.insert(StepSingleKey, ind, ind.Result), true
	case hasCons:
		return r.insert(StepSingleKey, cons, pending(cons.Result)), true
	case hasDep:
		return r.insert(StepSingleKey, dep, string(r.engine.placeholder)+dep.Result), true
	}
	return Outcome{}, false
}

func (r *resolution) insert(step Step, rule Rule, text string) Outcome {
	r.state.Buffer.Insert(text)
	return Outcome{Step: step, Rule: rule, Text: text}
}

func (r *resolution) replace(step Step, rule Rule, n int, text string) Outcome {
	out := Outcome{Step: step, Rule: rule, Text: text}
	if err := r.state.Buffer.ReplacePreceding(n, text); err != nil {
		out.Aborted = true
		r.engine.logger.Warn("edit aborted",
			"key", r.event.String(),
			"step", step.String(),
			"error", err,
		)
	}
	return out
}

// pending appends the conjunct-pending marker to a consonant or conjunct.
func pending(base string) string {
	return base + string([]rune{Halant, ZWNJ})
}
