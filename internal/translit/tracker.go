package translit

// Tracker remembers the most recently accepted Latin key. It exists only to
// recognise two-key vowel sequences.
type Tracker struct {
	last string
}

// Last returns the remembered key, or "".
func (t *Tracker) Last() string {
	return t.last
}

// Accept records key as the last effective key.
func (t *Tracker) Accept(key string) {
	t.last = key
}

// Reset forgets the remembered key.
func (t *Tracker) Reset() {
	t.last = ""
}

// Sequence returns last+key when the tables allow key to extend the
// remembered key into a two-key sequence.
func (t *Tracker) Sequence(key string, tables *Tables) (string, bool) {
	if t.last == "" || !tables.Permits(t.last, key) {
		return "", false
	}
	return t.last + key, true
}
