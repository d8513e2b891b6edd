package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed predictions-v1.schema.json
var predictionsSchemaJSON []byte

const predictionsSchemaURL = "predictions-v1.schema.json"

var (
	predictionsOnce   sync.Once
	predictionsSchema *jsonschema.Schema
	predictionsErr    error
)

func compiledPredictionsSchema() (*jsonschema.Schema, error) {
	predictionsOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(predictionsSchemaURL, bytes.NewReader(predictionsSchemaJSON)); err != nil {
			predictionsErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		predictionsSchema, predictionsErr = compiler.Compile(predictionsSchemaURL)
	})
	return predictionsSchema, predictionsErr
}

// LineRecord is one line in the predictions/export document.
type LineRecord struct {
	ImagePath   string  `json:"image_path,omitempty"`
	Predicted   string  `json:"predicted_label"`
	Confidence  float64 `json:"confidence_score,omitempty"`
	GroundTruth *string `json:"ground_truth,omitempty"`
	Distance    *int    `json:"levenshtein_distance,omitempty"`
}

// Document is the nested manuscript -> page -> line layout used for
// import and export.
type Document map[string]map[string]map[string]LineRecord

// ParsePredictions reads and validates a predictions document.
func ParsePredictions(r io.Reader) ([]Prediction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read predictions: %w", err)
	}

	sch, err := compiledPredictionsSchema()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	if err := sch.Validate(raw); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	return doc.Predictions()
}

// Predictions flattens the document in manuscript, page, line order.
func (d Document) Predictions() ([]Prediction, error) {
	var preds []Prediction
	for _, manuscript := range sortedKeys(d) {
		pages := d[manuscript]
		for _, page := range sortedKeys(pages) {
			lines := pages[page]

			keys := make([]int, 0, len(lines))
			byNumber := make(map[int]LineRecord, len(lines))
			for name, rec := range lines {
				n, err := strconv.Atoi(name)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%s/%s: invalid line number %q", manuscript, page, name)
				}
				if _, dup := byNumber[n]; dup {
					return nil, fmt.Errorf("%s/%s: duplicate line %d", manuscript, page, n)
				}
				keys = append(keys, n)
				byNumber[n] = rec
			}
			sort.Ints(keys)

			for _, n := range keys {
				rec := byNumber[n]
				preds = append(preds, Prediction{
					Key:         Key{Manuscript: manuscript, Page: page, Line: n},
					ImagePath:   rec.ImagePath,
					Label:       rec.Predicted,
					Confidence:  rec.Confidence,
					GroundTruth: rec.GroundTruth,
				})
			}
		}
	}
	return preds, nil
}

// Import stores predictions in one transaction and logs each as a
// recognition. It returns the number of lines written.
func (s *Store) Import(preds []Prediction) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range preds {
		if err := putPrediction(tx, p); err != nil {
			return 0, err
		}
		if _, err := logRecognition(tx, &Recognition{
			ImagePath:  p.ImagePath,
			Predicted:  p.Label,
			Confidence: p.Confidence,
			Manuscript: p.Key.Manuscript,
			Page:       p.Key.Page,
		}); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(preds), nil
}

// Export builds the nested document for a manuscript, or for the whole
// store when manuscript is empty.
func (s *Store) Export(manuscript string) (Document, error) {
	list, err := s.ListManuscript(manuscript)
	if err != nil {
		return nil, err
	}

	doc := make(Document)
	for _, a := range list {
		pages, ok := doc[a.Key.Manuscript]
		if !ok {
			pages = make(map[string]map[string]LineRecord)
			doc[a.Key.Manuscript] = pages
		}
		lines, ok := pages[a.Key.Page]
		if !ok {
			lines = make(map[string]LineRecord)
			pages[a.Key.Page] = lines
		}
		lines[strconv.Itoa(a.Key.Line)] = LineRecord{
			ImagePath:   a.ImagePath,
			Predicted:   a.Predicted,
			Confidence:  a.Confidence,
			GroundTruth: a.GroundTruth,
			Distance:    a.Distance,
		}
	}
	return doc, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
