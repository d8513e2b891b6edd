package translit

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeyBackspace is the key name of the backspace key.
const KeyBackspace = "Backspace"

// DefaultHalantKey is the Latin key that inserts an explicit HALANT.
const DefaultHalantKey = "q"

// Modifiers represents modifier key state.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta // Command on macOS, Windows key on Windows
)

// Has reports whether all modifiers in m are held.
func (mods Modifiers) Has(m Modifiers) bool {
	return mods&m == m
}

// String returns the modifiers in key-script notation, e.g. "C-S-".
func (mods Modifiers) String() string {
	var b strings.Builder
	if mods.Has(ModControl) {
		b.WriteString("C-")
	}
	if mods.Has(ModAlt) {
		b.WriteString("A-")
	}
	if mods.Has(ModMeta) {
		b.WriteString("M-")
	}
	if mods.Has(ModShift) {
		b.WriteString("S-")
	}
	return b.String()
}

// KeyEvent is a single key press delivered by the host field.
type KeyEvent struct {
	// Key is the produced character for printable keys ("k", "A") or the
	// key name for everything else ("Backspace", "Enter", "ArrowLeft").
	Key string

	// Modifiers indicates which modifier keys are held.
	Modifiers Modifiers
}

// NewKey creates a key event without modifiers.
func NewKey(key string) KeyEvent {
	return KeyEvent{Key: key}
}

// NewKeyWithModifiers creates a key event with explicit modifiers.
func NewKeyWithModifiers(key string, mods Modifiers) KeyEvent {
	return KeyEvent{Key: key, Modifiers: mods}
}

// IsBackspace reports whether the event is the backspace key.
func (k KeyEvent) IsBackspace() bool {
	return k.Key == KeyBackspace
}

// IsLetter reports whether the event produces a single Latin letter.
func (k KeyEvent) IsLetter() bool {
	r, size := utf8.DecodeRuneInString(k.Key)
	return size == len(k.Key) && r < utf8.RuneSelf && unicode.IsLetter(r)
}

// IsUpper reports whether the event produces a single uppercase Latin letter.
func (k KeyEvent) IsUpper() bool {
	return k.IsLetter() && unicode.IsUpper(rune(k.Key[0]))
}

// IsPrintable reports whether the host would insert the key as text.
func (k KeyEvent) IsPrintable() bool {
	r, size := utf8.DecodeRuneInString(k.Key)
	return size > 0 && size == len(k.Key) && unicode.IsPrint(r)
}

func (k KeyEvent) String() string {
	return k.Modifiers.String() + k.Key
}
