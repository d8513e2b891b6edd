package translit

// NativeHost is a Host that can also perform its own default key handling.
type NativeHost interface {
	Host
	Native(ev KeyEvent)
}

// MemoryHost is an in-memory text field. Its native handling covers text
// insertion, backspace and caret movement, which is enough to replay typing.
type MemoryHost struct {
	buf *Buffer
}

// NewMemoryHost creates a host holding value with the caret at caret.
func NewMemoryHost(value string, caret int) *MemoryHost {
	return &MemoryHost{buf: NewBuffer(value, caret)}
}

func (h *MemoryHost) Value() string { return h.buf.Value() }
func (h *MemoryHost) Caret() int    { return h.buf.Caret() }

func (h *MemoryHost) SetValue(value string, caret int) {
	h.buf.Reset(value, caret)
}

// Native performs the default action of an unclaimed key.
func (h *MemoryHost) Native(ev KeyEvent) {
	if ev.Modifiers&(ModControl|ModAlt|ModMeta) != 0 {
		return
	}
	switch ev.Key {
	case KeyBackspace:
		if h.buf.Caret() > 0 {
			_ = h.buf.ReplacePreceding(1, "")
		}
	case KeyEnter:
		h.buf.Insert("\n")
	case KeyTab:
		h.buf.Insert("\t")
	case KeyLeft:
		h.SetValue(h.Value(), h.Caret()-1)
	case KeyRight:
		h.SetValue(h.Value(), h.Caret()+1)
	case KeyHome:
		h.SetValue(h.Value(), 0)
	case KeyEnd:
		h.SetValue(h.Value(), h.buf.Len())
	default:
		if ev.IsPrintable() {
			h.buf.Insert(ev.Key)
		}
	}
}

// TraceEntry records one replayed event and the field after it.
type TraceEntry struct {
	Event   KeyEvent
	Outcome Outcome
	Value   string
	Caret   int
}

// Replay feeds events through f. Keys the engine does not claim are handed
// to host for native handling, as a browser would.
func Replay(f *Field, host NativeHost, events []KeyEvent) []TraceEntry {
	trace := make([]TraceEntry, 0, len(events))
	for _, ev := range events {
		out := f.HandleKey(ev)
		if !out.Claimed() {
			host.Native(ev)
		}
		trace = append(trace, TraceEntry{
			Event:   ev,
			Outcome: out,
			Value:   host.Value(),
			Caret:   host.Caret(),
		})
	}
	return trace
}

// Type replays a key script into an empty field and returns the final value.
func Type(engine *Engine, script string) (string, error) {
	events, err := ParseKeys(script)
	if err != nil {
		return "", err
	}
	host := NewMemoryHost("", 0)
	Replay(NewField(engine, host, WithSettleOnCommit(false)), host, events)
	return host.Value(), nil
}
