// Package store provides SQLite-based storage for manuscript line annotations.
//
// Every line of a manuscript page carries the recognizer's predicted label
// and, once an annotator has typed it, a ground-truth label. Labels are
// fingerprinted with BLAKE2b so that out-of-band edits to the database can
// be detected with VerifyLabels.
package store

import (
	"fmt"
	"time"
)

// Key identifies one line of a manuscript page.
type Key struct {
	Manuscript string
	Page       string
	Line       int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Manuscript, k.Page, k.Line)
}

// Annotation is the stored state of a single line.
type Annotation struct {
	ID          int64
	Key         Key
	ImagePath   string
	Predicted   string
	Confidence  float64
	GroundTruth *string // nil until annotated
	Distance    *int    // nil until scored
	Fingerprint [32]byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Annotated reports whether a ground truth has been recorded.
func (a *Annotation) Annotated() bool {
	return a.GroundTruth != nil
}

// Recognition is one recognizer output, kept as a log independent of edits.
type Recognition struct {
	ID         int64
	ImagePath  string
	Predicted  string
	Confidence float64
	Timestamp  time.Time
	Manuscript string
	Page       string
}

// Prediction is an imported recognizer line, optionally with a ground truth.
type Prediction struct {
	Key         Key
	ImagePath   string
	Label       string
	Confidence  float64
	GroundTruth *string
}
