// Package keymap loads user overlays for the transliteration tables.
//
// An overlay adds or replaces consonants, conjuncts, vowels, sequence
// prefixes and vowel replacements on top of the built-in tables. Overlays
// are written in YAML, JSON or TOML and are checked against an embedded JSON
// schema before they are merged.
//
// Example (YAML):
//
//	version: 1
//	name: marathi-extras
//	consonants:
//	  x: "क्ष"
//	conjuncts:
//	  - {key: r, after: "त", result: "त्र"}
//	vowels:
//	  - {keys: "ee", independent: "ई", dependent: "ी"}
package keymap

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"devtype/internal/translit"
)

// Version is the overlay format version this package reads.
const Version = 1

// ErrUnsupportedVersion is returned for overlays written for another format version.
var ErrUnsupportedVersion = errors.New("unsupported keymap version")

//go:embed keymap-v1.schema.json
var schemaJSON []byte

const schemaURL = "keymap-v1.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Format is an overlay file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("keymap %s: unknown extension (want .yaml, .json or .toml)", path)
	}
}

// Overlay is a set of additions to the built-in tables.
type Overlay struct {
	Version      int               `json:"version"`
	Name         string            `json:"name,omitempty"`
	Consonants   map[string]string `json:"consonants,omitempty"`
	Conjuncts    []Conjunct        `json:"conjuncts,omitempty"`
	Vowels       []Vowel           `json:"vowels,omitempty"`
	Prefixes     map[string]string `json:"prefixes,omitempty"`
	Replacements []Replacement     `json:"replacements,omitempty"`
}

// Conjunct is a double (one consonant in After) or triple (two consonants)
// conjunct rule.
type Conjunct struct {
	Key    string `json:"key"`
	After  string `json:"after"`
	Result string `json:"result"`
}

// Vowel maps a one or two letter sequence to its independent and dependent forms.
// Independent may be empty for sequences that only exist as vowel signs.
type Vowel struct {
	Keys        string `json:"keys"`
	Independent string `json:"independent,omitempty"`
	Dependent   string `json:"dependent"`
}

// Replacement rewrites the glyph After when Key completes a vowel sequence.
type Replacement struct {
	After  string `json:"after"`
	Key    string `json:"key"`
	Result string `json:"result"`
}

// Load reads an overlay file.
func Load(path string) (*Overlay, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keymap: %w", err)
	}
	o, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("keymap %s: %w", path, err)
	}
	return o, nil
}

// Parse decodes and schema-validates an overlay.
func Parse(data []byte, format Format) (*Overlay, error) {
	var doc map[string]any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown keymap format %q", format)
	}

	// Re-encode as JSON so every format is validated against the same
	// JSON value model.
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize keymap: %w", err)
	}
	var instance any
	dec := json.NewDecoder(bytes.NewReader(canonical))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("normalize keymap: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(instance); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	var o Overlay
	if err := json.Unmarshal(canonical, &o); err != nil {
		return nil, fmt.Errorf("decode overlay: %w", err)
	}
	if o.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, o.Version)
	}
	return &o, nil
}

// Apply returns a copy of set with the overlay merged in. Overlay rules are
// appended after the existing ones and so replace rules with the same key.
func (o *Overlay) Apply(set translit.TableSet) (translit.TableSet, error) {
	out := set.Clone()
	if o == nil {
		return out, nil
	}

	for _, key := range sortedKeys(o.Consonants) {
		out.Rules = append(out.Rules, translit.Rule{
			Kind:    translit.SingleConsonant,
			Trigger: key,
			Result:  o.Consonants[key],
		})
	}

	var errs []error
	for _, c := range o.Conjuncts {
		rule := translit.Rule{Trigger: c.Key, Context: c.After, Result: c.Result}
		switch utf8.RuneCountInString(c.After) {
		case 1:
			rule.Kind, rule.Remove = translit.DoubleConjunct, translit.DoubleRemove
		case 2:
			rule.Kind, rule.Remove = translit.TripleConjunct, translit.TripleRemove
		default:
			errs = append(errs, fmt.Errorf("conjunct %q after %q: want one or two consonants", c.Key, c.After))
			continue
		}
		out.Rules = append(out.Rules, rule)
	}

	for _, v := range o.Vowels {
		if v.Independent != "" {
			out.Rules = append(out.Rules, translit.Rule{Kind: translit.IndependentVowel, Trigger: v.Keys, Result: v.Independent})
		}
		out.Rules = append(out.Rules, translit.Rule{Kind: translit.DependentVowel, Trigger: v.Keys, Result: v.Dependent})
	}

	for first, next := range o.Prefixes {
		out.Prefixes[first] = next
	}

	for _, r := range o.Replacements {
		after, size := utf8.DecodeRuneInString(r.After)
		if size != len(r.After) {
			errs = append(errs, fmt.Errorf("replacement after %q: want a single glyph", r.After))
			continue
		}
		out.Replacements = append(out.Replacements, translit.Replacement{Preceding: after, Key: r.Key, Result: r.Result})
	}

	if len(errs) > 0 {
		return translit.TableSet{}, errors.Join(errs...)
	}
	return out, nil
}

// Tables merges the overlay into the built-in tables and validates the result.
func (o *Overlay) Tables() (*translit.Tables, error) {
	set, err := o.Apply(translit.DefaultTableSet())
	if err != nil {
		return nil, err
	}
	return translit.NewTables(set)
}

// LoadTables loads the overlay at path and builds tables from it. An empty
// path yields the built-in tables.
func LoadTables(path string) (*translit.Tables, error) {
	if path == "" {
		return translit.DefaultTables(), nil
	}
	o, err := Load(path)
	if err != nil {
		return nil, err
	}
	t, err := o.Tables()
	if err != nil {
		return nil, fmt.Errorf("keymap %s: %w", path, err)
	}
	return t, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
