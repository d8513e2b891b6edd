package translit

import (
	"errors"
	"fmt"
)

// ErrInvalidRemoveCount is returned when ReplacePreceding is asked to remove
// more units than exist before the caret.
var ErrInvalidRemoveCount = errors.New("remove count exceeds caret")

// Buffer is the engine's shadow copy of a text field: its units and caret.
// The caret is always within 0..Len().
type Buffer struct {
	units []rune
	caret int
}

// NewBuffer creates a buffer holding value with the caret clamped into range.
func NewBuffer(value string, caret int) *Buffer {
	b := &Buffer{}
	b.Reset(value, caret)
	return b
}

// Reset replaces the content and caret, e.g. after a native edit by the host.
func (b *Buffer) Reset(value string, caret int) {
	b.units = []rune(value)
	b.caret = clampInt(caret, 0, len(b.units))
}

// Value returns the buffer content.
func (b *Buffer) Value() string {
	return string(b.units)
}

// Caret returns the caret offset in units.
func (b *Buffer) Caret() int {
	return b.caret
}

// Len returns the number of units.
func (b *Buffer) Len() int {
	return len(b.units)
}

// Insert splices text at the caret and moves the caret past it.
func (b *Buffer) Insert(text string) {
	b.splice(b.caret, []rune(text))
}

// ReplacePreceding removes n units immediately before the caret and splices
// text in their place. The buffer is left unchanged when n exceeds the caret.
func (b *Buffer) ReplacePreceding(n int, text string) error {
	if n < 0 || n > b.caret {
		return fmt.Errorf("replace %d units at caret %d: %w", n, b.caret, ErrInvalidRemoveCount)
	}
	b.splice(b.caret-n, []rune(text))
	return nil
}

// splice replaces units[start:caret] with ins and leaves the caret after ins.
func (b *Buffer) splice(start int, ins []rune) {
	tail := b.units[b.caret:]
	next := make([]rune, 0, start+len(ins)+len(tail))
	next = append(next, b.units[:start]...)
	next = append(next, ins...)
	next = append(next, tail...)
	b.units = next
	b.caret = start + len(ins)
}

// before returns the unit at caret-back, or 0 when out of range.
func (b *Buffer) before(back int) rune {
	i := b.caret - back
	if back <= 0 || i < 0 {
		return 0
	}
	return b.units[i]
}

func clampInt(v, min, max int) int {
	if max < min {
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
