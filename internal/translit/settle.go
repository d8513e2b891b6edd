package translit

// Settle removes every ZWNJ that does not directly follow a HALANT. A ZWNJ
// after a HALANT keeps the consonant visibly half-formed and is kept.
func Settle(value string) string {
	out, _ := SettleAt(value, 0)
	return out
}

// SettleAt is Settle for a field with a caret; the returned caret points at
// the same position in the settled value.
func SettleAt(value string, caret int) (string, int) {
	units := []rune(value)
	caret = clampInt(caret, 0, len(units))

	out := make([]rune, 0, len(units))
	newCaret := caret
	for i, r := range units {
		if r == ZWNJ && (i == 0 || units[i-1] != Halant) {
			if i < caret {
				newCaret--
			}
			continue
		}
		out = append(out, r)
	}
	return string(out), newCaret
}
