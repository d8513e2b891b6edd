package translit

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrKeyScript is wrapped by every ParseKeys error.
var ErrKeyScript = errors.New("invalid key script")

// Named keys accepted inside <...>.
var namedKeys = map[string]string{
	"BS":        KeyBackspace,
	"Backspace": KeyBackspace,
	"Enter":     KeyEnter,
	"CR":        KeyEnter,
	"Tab":       KeyTab,
	"Esc":       KeyEscape,
	"Space":     " ",
	"Left":      KeyLeft,
	"Right":     KeyRight,
	"Home":      KeyHome,
	"End":       KeyEnd,
}

// Non-printable key names.
const (
	KeyEnter  = "Enter"
	KeyTab    = "Tab"
	KeyEscape = "Escape"
	KeyLeft   = "ArrowLeft"
	KeyRight  = "ArrowRight"
	KeyHome   = "Home"
	KeyEnd    = "End"
)

// ParseKeys parses a key script into events. Plain characters are typed as
// is (uppercase letters carry Shift). Special keys and chords are written in
// angle brackets: <BS>, <Enter>, <S-A>, <C-c>, <C-A-Left>. "<<" types "<".
func ParseKeys(script string) ([]KeyEvent, error) {
	var events []KeyEvent
	for i := 0; i < len(script); {
		r, size := utf8.DecodeRuneInString(script[i:])
		if r == utf8.RuneError && size <= 1 {
			return nil, fmt.Errorf("%w: invalid UTF-8 at byte %d", ErrKeyScript, i)
		}
		if r != '<' {
			events = append(events, plainKey(string(r)))
			i += size
			continue
		}
		if strings.HasPrefix(script[i:], "<<") {
			events = append(events, NewKey("<"))
			i += 2
			continue
		}
		end := strings.IndexByte(script[i:], '>')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated %q at byte %d", ErrKeyScript, script[i:], i)
		}
		ev, err := parseChord(script[i+1 : i+end])
		if err != nil {
			return nil, fmt.Errorf("%w: byte %d: %v", ErrKeyScript, i, err)
		}
		events = append(events, ev)
		i += end + 1
	}
	return events, nil
}

func plainKey(key string) KeyEvent {
	ev := NewKey(key)
	if ev.IsUpper() {
		ev.Modifiers = ModShift
	}
	return ev
}

func parseChord(chord string) (KeyEvent, error) {
	var mods Modifiers
	for len(chord) > 2 && chord[1] == '-' {
		switch chord[0] {
		case 'C':
			mods |= ModControl
		case 'A':
			mods |= ModAlt
		case 'M':
			mods |= ModMeta
		case 'S':
			mods |= ModShift
		default:
			return KeyEvent{}, fmt.Errorf("unknown modifier %q", chord[:2])
		}
		chord = chord[2:]
	}
	if chord == "" {
		return KeyEvent{}, errors.New("empty key")
	}
	if name, ok := namedKeys[chord]; ok {
		return NewKeyWithModifiers(name, mods), nil
	}
	if utf8.RuneCountInString(chord) != 1 {
		return KeyEvent{}, fmt.Errorf("unknown key %q", chord)
	}
	r, _ := utf8.DecodeRuneInString(chord)
	if !unicode.IsPrint(r) {
		return KeyEvent{}, fmt.Errorf("unprintable key %q", chord)
	}
	return NewKeyWithModifiers(chord, mods), nil
}

// FormatKeys renders events back into key-script notation.
func FormatKeys(events []KeyEvent) string {
	names := make(map[string]string, len(namedKeys))
	for short, name := range namedKeys {
		if prev, ok := names[name]; !ok || len(short) < len(prev) {
			names[name] = short
		}
	}

	var b strings.Builder
	for _, ev := range events {
		mods := ev.Modifiers
		if ev.IsUpper() {
			mods &^= ModShift
		}
		name, named := names[ev.Key]
		switch {
		case mods == 0 && !named && ev.Key == "<":
			b.WriteString("<<")
		case mods == 0 && !named:
			b.WriteString(ev.Key)
		case named:
			b.WriteString("<" + mods.String() + name + ">")
		default:
			b.WriteString("<" + mods.String() + ev.Key + ">")
		}
	}
	return b.String()
}
