package translit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeys(t *testing.T) {
	tests := []struct {
		script string
		want   []KeyEvent
	}{
		{"ka", []KeyEvent{NewKey("k"), NewKey("a")}},
		{"A", []KeyEvent{NewKeyWithModifiers("A", ModShift)}},
		{"k<BS>", []KeyEvent{NewKey("k"), NewKey(KeyBackspace)}},
		{"<Backspace>", []KeyEvent{NewKey(KeyBackspace)}},
		{"<S-A>", []KeyEvent{NewKeyWithModifiers("A", ModShift)}},
		{"<C-c>", []KeyEvent{NewKeyWithModifiers("c", ModControl)}},
		{"<C-A-Left>", []KeyEvent{NewKeyWithModifiers(KeyLeft, ModControl|ModAlt)}},
		{"<C-->", []KeyEvent{NewKeyWithModifiers("-", ModControl)}},
		{"<Enter><Space><Tab>", []KeyEvent{NewKey(KeyEnter), NewKey(" "), NewKey(KeyTab)}},
		{"a<<b", []KeyEvent{NewKey("a"), NewKey("<"), NewKey("b")}},
		{"क", []KeyEvent{NewKey("क")}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			got, err := ParseKeys(tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKeysErrors(t *testing.T) {
	for _, script := range []string{"<BS", "<>", "<X-a>", "<Nope>", "ab<C->", "\xff"} {
		t.Run(script, func(t *testing.T) {
			_, err := ParseKeys(script)
			require.ErrorIs(t, err, ErrKeyScript)
		})
	}
}

func TestFormatKeys(t *testing.T) {
	for _, script := range []string{"kha<BS>a", "<C-c>x", "a<<b", "AE<CR>", "<S-Left>"} {
		t.Run(script, func(t *testing.T) {
			events, err := ParseKeys(script)
			require.NoError(t, err)
			assert.Equal(t, script, FormatKeys(events))
		})
	}
}
