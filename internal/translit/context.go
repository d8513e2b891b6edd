package translit

import "fmt"

// contextWidth is how many units before the caret the classifier reads.
const contextWidth = 5

// Context is the classification of the units before the caret. It is
// recomputed for every key event because the host may change the field
// between events.
type Context struct {
	caret       int
	units       [contextWidth]rune // units[i] is the unit at caret-(i+1)
	independent bool
}

// Classify reads up to five units before the caret of buf.
func Classify(buf *Buffer, tables *Tables) Context {
	c := Context{caret: buf.Caret()}
	for i := range c.units {
		c.units[i] = buf.before(i + 1)
	}
	c.independent = c.units[0] != 0 && tables.IsIndependentVowel(c.units[0])
	return c
}

func (c Context) at(back int) rune {
	return c.units[back-1]
}

// Caret returns the caret offset the context was read at.
func (c Context) Caret() int {
	return c.caret
}

// Last returns the unit immediately before the caret, or 0.
func (c Context) Last() rune {
	return c.at(1)
}

// ConjunctPending reports whether [ConsonantBase, HALANT, ZWNJ] ends at the caret.
func (c Context) ConjunctPending() bool {
	return c.markerAfterHalant() && IsConsonantBase(c.at(3))
}

// AfterIndependentVowel reports whether an independent vowel immediately
// precedes the caret.
func (c Context) AfterIndependentVowel() bool {
	return c.independent
}

// HalantBeforeLast reports whether the unit at caret-2 is HALANT.
func (c Context) HalantBeforeLast() bool {
	return c.caret >= 2 && c.at(2) == Halant
}

// LastIsMarker reports whether the unit immediately before the caret is ZWNJ.
func (c Context) LastIsMarker() bool {
	return c.at(1) == ZWNJ
}

// PrecedingConsonant returns the consonant in front of a HALANT+ZWNJ suffix,
// used as the double-conjunct context.
func (c Context) PrecedingConsonant() (string, bool) {
	if c.caret < 3 || !c.markerAfterHalant() {
		return "", false
	}
	return string(c.at(3)), true
}

// PrecedingPair returns the two consonants of a Base1+HALANT+Base2+HALANT+ZWNJ
// suffix, used as the triple-conjunct context.
func (c Context) PrecedingPair() (string, bool) {
	if c.caret < 5 || !c.markerAfterHalant() || c.at(4) != Halant {
		return "", false
	}
	return string([]rune{c.at(5), c.at(3)}), true
}

func (c Context) markerAfterHalant() bool {
	return c.at(1) == ZWNJ && c.at(2) == Halant
}

func (c Context) String() string {
	return fmt.Sprintf("caret=%d -5:%U -4:%U -3:%U -2:%U -1:%U",
		c.caret, c.at(5), c.at(4), c.at(3), c.at(2), c.at(1))
}
