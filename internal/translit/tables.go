package translit

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Marker and placeholder glyphs.
const (
	Halant       = '\u094D' // DEVANAGARI SIGN VIRAMA
	ZWNJ         = '\u200C' // ZERO WIDTH NON-JOINER, used as the "conjunct pending" marker
	DottedCircle = '\u25CC' // host for a vowel sign typed without a consonant
)

// Remove counts of the conjunct rules.
const (
	DoubleRemove = 3 // Base + HALANT + ZWNJ
	TripleRemove = 5 // Base1 + HALANT + Base2 + HALANT + ZWNJ
)

// IsConsonantBase reports whether r is a Devanagari base consonant.
func IsConsonantBase(r rune) bool {
	return (r >= 0x0915 && r <= 0x0939) || (r >= 0x0958 && r <= 0x095F)
}

// RuleKind tags the variant of a Rule.
type RuleKind uint8

const (
	SingleConsonant RuleKind = iota + 1
	DoubleConjunct
	TripleConjunct
	IndependentVowel
	DependentVowel
)

func (k RuleKind) String() string {
	switch k {
	case SingleConsonant:
		return "consonant"
	case DoubleConjunct:
		return "double"
	case TripleConjunct:
		return "triple"
	case IndependentVowel:
		return "independent"
	case DependentVowel:
		return "dependent"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Rule maps a Latin trigger to Devanagari output.
type Rule struct {
	Kind RuleKind

	// Trigger is the Latin key (or, for vowels, a 1–3 letter sequence).
	Trigger string

	// Context is the preceding base consonant (double) or the two preceding
	// base consonants (triple). Empty for every other kind.
	Context string

	// Result is the emitted glyph sequence. Conjunct and consonant results
	// are emitted followed by HALANT+ZWNJ.
	Result string

	// Remove is the number of units replaced by a conjunct rule.
	Remove int
}

// Replacement rewrites the vowel glyph before the caret when Key completes
// a two-key sequence, e.g. इ + "i" → ई.
type Replacement struct {
	Preceding rune
	Key       string
	Result    string
}

// TableSet is the raw, mutable description that Tables are built from.
type TableSet struct {
	Rules []Rule

	// Prefixes maps the first letter of a two-key vowel sequence to the
	// letters that may follow it.
	Prefixes map[string]string

	Replacements []Replacement
}

// Clone returns a deep copy of the set.
func (s TableSet) Clone() TableSet {
	out := TableSet{
		Rules:        append([]Rule(nil), s.Rules...),
		Prefixes:     make(map[string]string, len(s.Prefixes)),
		Replacements: append([]Replacement(nil), s.Replacements...),
	}
	for k, v := range s.Prefixes {
		out.Prefixes[k] = v
	}
	return out
}

type ruleKey struct {
	kind    RuleKind
	trigger string
	context string
}

type replacementKey struct {
	preceding rune
	key       string
}

// Tables is the immutable, indexed form of a TableSet.
type Tables struct {
	index        map[ruleKey]Rule
	triggers     map[string]struct{}
	prefixes     map[string]map[string]struct{}
	replacements map[replacementKey]string
	independent  map[rune]struct{}
}

// NewTables validates set and builds its lookup index. Later rules with the
// same kind, trigger and context replace earlier ones.
func NewTables(set TableSet) (*Tables, error) {
	t := &Tables{
		index:        make(map[ruleKey]Rule, len(set.Rules)),
		triggers:     make(map[string]struct{}),
		prefixes:     make(map[string]map[string]struct{}, len(set.Prefixes)),
		replacements: make(map[replacementKey]string, len(set.Replacements)),
		independent:  make(map[rune]struct{}),
	}

	var errs []error
	for _, r := range set.Rules {
		if err := validateRule(r); err != nil {
			errs = append(errs, err)
			continue
		}
		t.index[ruleKey{r.Kind, r.Trigger, r.Context}] = r
		t.triggers[r.Trigger] = struct{}{}
	}

	for key := range t.index {
		if key.kind != IndependentVowel {
			continue
		}
		if _, ok := t.index[ruleKey{DependentVowel, key.trigger, ""}]; !ok {
			errs = append(errs, fmt.Errorf("independent vowel %q has no dependent form", key.trigger))
		}
	}
	for key, r := range t.index {
		if key.kind != IndependentVowel {
			continue
		}
		if g, size := utf8.DecodeRuneInString(r.Result); size == len(r.Result) {
			t.independent[g] = struct{}{}
		}
	}

	for first, next := range set.Prefixes {
		if !isLatinSequence(first, 1) {
			errs = append(errs, fmt.Errorf("prefix %q: must be a single Latin letter", first))
			continue
		}
		allowed := make(map[string]struct{}, len(next))
		for _, r := range next {
			if !isLatinSequence(string(r), 1) {
				errs = append(errs, fmt.Errorf("prefix %q: %q is not a Latin letter", first, r))
				continue
			}
			allowed[string(r)] = struct{}{}
		}
		t.prefixes[first] = allowed
	}

	for _, rp := range set.Replacements {
		switch {
		case !isLatinSequence(rp.Key, 1):
			errs = append(errs, fmt.Errorf("replacement for %q: key %q must be a single Latin letter", rp.Preceding, rp.Key))
		case rp.Result == "":
			errs = append(errs, fmt.Errorf("replacement for %q on %q: empty result", rp.Preceding, rp.Key))
		default:
			t.replacements[replacementKey{rp.Preceding, rp.Key}] = rp.Result
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid tables: %w", errors.Join(errs...))
	}
	return t, nil
}

func validateRule(r Rule) error {
	if r.Result == "" {
		return fmt.Errorf("%s rule %q: empty result", r.Kind, r.Trigger)
	}
	switch r.Kind {
	case SingleConsonant:
		if !isLatinSequence(r.Trigger, 1) {
			return fmt.Errorf("consonant rule %q: trigger must be a single Latin letter", r.Trigger)
		}
		if c, size := utf8.DecodeRuneInString(r.Result); size != len(r.Result) || !IsConsonantBase(c) {
			return fmt.Errorf("consonant rule %q: result %q is not a single base consonant", r.Trigger, r.Result)
		}
	case DoubleConjunct, TripleConjunct:
		want, remove := 1, DoubleRemove
		if r.Kind == TripleConjunct {
			want, remove = 2, TripleRemove
		}
		if !isLatinSequence(r.Trigger, 1) {
			return fmt.Errorf("%s rule %q: trigger must be a single Latin letter", r.Kind, r.Trigger)
		}
		if utf8.RuneCountInString(r.Context) != want || !allConsonants(r.Context) {
			return fmt.Errorf("%s rule %q: context %q must be %d base consonant(s)", r.Kind, r.Trigger, r.Context, want)
		}
		if r.Remove != remove {
			return fmt.Errorf("%s rule %q/%s: remove count %d, want %d", r.Kind, r.Trigger, r.Context, r.Remove, remove)
		}
		if last, _ := utf8.DecodeLastRuneInString(r.Result); !IsConsonantBase(last) {
			return fmt.Errorf("%s rule %q/%s: result %q must end in a base consonant", r.Kind, r.Trigger, r.Context, r.Result)
		}
	case IndependentVowel, DependentVowel:
		if !isLatinSequence(r.Trigger, 2) {
			return fmt.Errorf("%s rule %q: trigger must be 1-2 Latin letters", r.Kind, r.Trigger)
		}
		if r.Context != "" || r.Remove != 0 {
			return fmt.Errorf("%s rule %q: vowels take no context or remove count", r.Kind, r.Trigger)
		}
	default:
		return fmt.Errorf("rule %q: unknown kind %d", r.Trigger, r.Kind)
	}
	return nil
}

func isLatinSequence(s string, max int) bool {
	if s == "" || len(s) > max {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func allConsonants(s string) bool {
	for _, r := range s {
		if !IsConsonantBase(r) {
			return false
		}
	}
	return true
}

// Lookup returns the rule of the given kind for trigger and context.
func (t *Tables) Lookup(kind RuleKind, trigger, context string) (Rule, bool) {
	r, ok := t.index[ruleKey{kind, trigger, context}]
	return r, ok
}

// Consonant returns the single-consonant rule for key.
func (t *Tables) Consonant(key string) (Rule, bool) {
	return t.Lookup(SingleConsonant, key, "")
}

// Independent returns the independent-vowel rule for a Latin sequence.
func (t *Tables) Independent(seq string) (Rule, bool) {
	return t.Lookup(IndependentVowel, seq, "")
}

// Dependent returns the dependent-vowel (matra) rule for a Latin sequence.
func (t *Tables) Dependent(seq string) (Rule, bool) {
	return t.Lookup(DependentVowel, seq, "")
}

// Permits reports whether next may extend first into a two-key sequence.
func (t *Tables) Permits(first, next string) bool {
	_, ok := t.prefixes[first][next]
	return ok
}

// Replacement returns the glyph that replaces preceding when key completes a
// two-key vowel sequence.
func (t *Tables) Replacement(preceding rune, key string) (string, bool) {
	r, ok := t.replacements[replacementKey{preceding, key}]
	return r, ok
}

// IsIndependentVowel reports whether r is the output of an independent-vowel rule.
func (t *Tables) IsIndependentVowel(r rune) bool {
	_, ok := t.independent[r]
	return ok
}

// Mapped reports whether key is recognised by any rule or starts a vowel sequence.
func (t *Tables) Mapped(key string) bool {
	if _, ok := t.triggers[key]; ok {
		return true
	}
	_, ok := t.prefixes[key]
	return ok
}

// Rules returns every rule ordered by kind, trigger and context.
func (t *Tables) Rules() []Rule {
	out := make([]Rule, 0, len(t.index))
	for _, r := range t.index {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Trigger != b.Trigger {
			return a.Trigger < b.Trigger
		}
		return a.Context < b.Context
	})
	return out
}

// Set returns a TableSet that rebuilds t.
func (t *Tables) Set() TableSet {
	set := TableSet{
		Rules:    t.Rules(),
		Prefixes: make(map[string]string, len(t.prefixes)),
	}
	for first, allowed := range t.prefixes {
		keys := make([]string, 0, len(allowed))
		for k := range allowed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var next string
		for _, k := range keys {
			next += k
		}
		set.Prefixes[first] = next
	}
	for k, v := range t.replacements {
		set.Replacements = append(set.Replacements, Replacement{Preceding: k.preceding, Key: k.key, Result: v})
	}
	sort.Slice(set.Replacements, func(i, j int) bool {
		a, b := set.Replacements[i], set.Replacements[j]
		if a.Preceding != b.Preceding {
			return a.Preceding < b.Preceding
		}
		return a.Key < b.Key
	})
	return set
}

var defaultTables = mustTables(DefaultTableSet())

// DefaultTables returns the built-in tables.
func DefaultTables() *Tables {
	return defaultTables
}

func mustTables(set TableSet) *Tables {
	t, err := NewTables(set)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTableSet returns a fresh copy of the built-in rule data.
func DefaultTableSet() TableSet {
	var rules []Rule

	for _, p := range [][2]string{
		{"k", "क"}, {"g", "ग"}, {"c", "च"}, {"j", "ज"},
		{"T", "ट"}, {"t", "त"}, {"D", "ड"}, {"d", "द"},
		{"N", "ण"}, {"n", "न"}, {"p", "प"}, {"b", "ब"},
		{"m", "म"}, {"y", "य"}, {"r", "र"}, {"l", "ल"},
		{"v", "व"}, {"V", "ङ"}, {"S", "ष"}, {"s", "स"},
		{"h", "ह"}, {"L", "ळ"}, {"Y", "ञ"}, {"f", "फ"},
	} {
		rules = append(rules, Rule{Kind: SingleConsonant, Trigger: p[0], Result: p[1]})
	}

	for _, d := range [][3]string{
		// aspirates
		{"h", "क", "ख"}, {"h", "ग", "घ"}, {"h", "च", "छ"}, {"h", "ज", "झ"},
		{"h", "ट", "ठ"}, {"h", "ड", "ढ"}, {"h", "त", "थ"}, {"h", "द", "ध"},
		{"h", "प", "फ"}, {"h", "ब", "भ"}, {"h", "स", "श"},
		// kSh, Sh
		{"h", "ष", "ष"},
		{"s", "क", "क्ष"}, {"S", "क", "क्ष"},
		// shr
		{"r", "श", "श्र"},
	} {
		rules = append(rules, Rule{Kind: DoubleConjunct, Trigger: d[0], Context: d[1], Result: d[2], Remove: DoubleRemove})
	}

	for _, d := range [][3]string{
		{"y", "दन", "ज्ञ"}, {"y", "गञ", "ज्ञ"}, {"y", "गन", "ज्ञ"},
	} {
		rules = append(rules, Rule{Kind: TripleConjunct, Trigger: d[0], Context: d[1], Result: d[2], Remove: TripleRemove})
	}

	// {sequence, independent, dependent}; an empty independent marks a
	// sequence that only exists as a vowel sign.
	for _, v := range [][3]string{
		{"a", "अ", "ा"}, {"A", "अ", "ा"},
		{"i", "इ", "ि"}, {"I", "इ", "ि"},
		{"u", "उ", "ु"}, {"U", "उ", "ु"},
		{"e", "ए", "े"}, {"E", "ए", "े"},
		{"o", "ओ", "ो"}, {"O", "ओ", "ो"},

		{"aa", "आ", "ा"}, {"AA", "आ", "ा"},
		{"ii", "ई", "ी"}, {"II", "ई", "ी"}, {"ee", "ई", "ी"},
		{"uu", "ऊ", "ू"}, {"UU", "ऊ", "ू"}, {"oo", "ऊ", "ू"},
		{"ai", "ऐ", "ै"}, {"AI", "ऐ", "ै"},
		{"au", "औ", "ौ"}, {"AU", "औ", "ौ"}, {"ou", "औ", "ौ"},

		// vocalic r; RR and RI lengthen it through replacements
		{"R", "ऋ", "ृ"},

		// Marathi / borrowed
		{"AE", "ॲ", "ॅ"}, {"AO", "ऑ", "ॉ"},
		{"aE", "", "ॅ"}, {"aO", "", "ॉ"},

		// South Indian short e; zo gives short o
		{"z", "ऎ", "ॆ"},
	} {
		if v[1] != "" {
			rules = append(rules, Rule{Kind: IndependentVowel, Trigger: v[0], Result: v[1]})
		}
		rules = append(rules, Rule{Kind: DependentVowel, Trigger: v[0], Result: v[2]})
	}

	prefixes := map[string]string{
		"R": "RI",
		"z": "oO",
		"a": "aeiuEO",
		"A": "AEIOU",
		"e": "ei",
		"E": "EI",
		"i": "ie",
		"I": "IE",
		"o": "oui",
		"O": "OUI",
		"u": "uo",
		"U": "UO",
	}

	var replacements []Replacement
	add := func(preceding rune, result string, keys ...string) {
		for _, k := range keys {
			replacements = append(replacements, Replacement{Preceding: preceding, Key: k, Result: result})
		}
	}
	// vowel signs
	add('ि', "ी", "i", "I", "e", "E")
	add('ु', "ू", "u", "U", "o", "O")
	add('े', "ी", "e", "E")
	add('े', "ै", "i", "I")
	add('ो', "ू", "o", "O")
	add('ो', "ौ", "u", "U", "i", "I")
	add('ृ', "ॄ", "R", "I")
	add('ॆ', "ॊ", "o", "O")
	add('ा', "ा", "a", "A")
	add('ा', "ॅ", "E")
	add('ा', "ॉ", "O")
	add('ा', "ै", "i", "I")
	add('ा', "ौ", "u", "U")
	// independent vowels
	add('इ', "ई", "i", "I", "e", "E")
	add('उ', "ऊ", "u", "U", "o", "O")
	add('ए', "ई", "e", "E")
	add('ए', "ऐ", "i", "I")
	add('ओ', "ऊ", "o", "O")
	add('ओ', "औ", "u", "U", "i", "I")
	add('अ', "आ", "a", "A")
	add('अ', "ॲ", "E")
	add('अ', "ऑ", "O")
	add('अ', "ऐ", "i", "I")
	add('अ', "औ", "u", "U")
	add('ऋ', "ॠ", "R", "I")
	add('ऎ', "ऒ", "o", "O")

	return TableSet{Rules: rules, Prefixes: prefixes, Replacements: replacements}
}
