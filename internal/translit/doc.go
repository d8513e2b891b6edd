// Package translit turns Latin key events into edits of a Devanagari text buffer.
//
// # Architecture Overview
//
// The engine never keeps an explicit "composition" state. Whatever is still
// being composed lives in the buffer itself, as a suffix ending at the caret:
//
//	[ConsonantBase, HALANT, ZWNJ]
//
// ZWNJ is used here as a typing marker meaning "this consonant may still grow
// into a conjunct or take a vowel sign". Each key event inspects at most five
// units before the caret plus the previously accepted Latin key, and rewrites
// that suffix.
//
// # Components
//
//	┌──────────────────┬─────────────────────────────────────────────────────┐
//	│ Component        │ Responsibility                                      │
//	├──────────────────┼─────────────────────────────────────────────────────┤
//	│ Tables           │ Latin → Devanagari rules (tagged by RuleKind)       │
//	│ Context          │ classification of caret-1 .. caret-5                │
//	│ Tracker          │ last accepted Latin key (two-key vowel sequences)   │
//	│ Buffer           │ Insert / ReplacePreceding, caret kept consistent    │
//	│ Engine           │ fixed-priority dispatch of one key event            │
//	│ Field            │ binds Engine + State to a host text field           │
//	└──────────────────┴─────────────────────────────────────────────────────┘
//
// # Data Flow
//
//	┌────────────────┐
//	│  Key event     │
//	│  "k" "h" "a"   │
//	└───────┬────────┘
//	        ↓
//	┌────────────────┐     ┌─────────────────────────────────────────┐
//	│ Field          │     │ For each key:                           │
//	│ (host handle)  │────→│ 1. Resync shadow buffer from the host   │
//	└───────┬────────┘     │ 2. Classify context, read tracker       │
//	        │              │ 3. Look up rules in priority order      │
//	        ↓              │ 4. Edit the buffer, update tracker      │
//	┌────────────────┐     │ 5. Push value + caret back to the host  │
//	│ Engine         │     └─────────────────────────────────────────┘
//	└───────┬────────┘
//	        ↓
//	┌────────────────┐
//	│ "खा"           │
//	└────────────────┘
//
// # Dispatch Priority
//
// The first step that matches claims the key:
//
//  1. Modifier filter (Ctrl/Alt/Meta, unmapped Shift)
//  2. Explicit halant key
//  3. Backspace (pending cluster, restored marker, native)
//  4. Triple conjunct
//  5. Double conjunct
//  6. Two-key vowel sequence
//  7. Single key by context
//  8. Native fallback
//
// Steps 3c and 8 leave the edit to the host; the Field marks its shadow buffer
// stale and rereads the host before the next key is classified.
//
// # Units
//
// Buffer offsets and carets count runes. Every glyph the tables produce is in
// the Basic Multilingual Plane, so a rune is also one UTF-16 code unit of a
// browser text field.
package translit
