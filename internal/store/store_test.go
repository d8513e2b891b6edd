package store

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func strPtr(s string) *string { return &s }

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "subdir", "nested", "test.db"))
	require.NoError(t, err)
	defer s.Close()
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestOpenLocksDatabase(t *testing.T) {
	switch runtime.GOOS {
	case "js", "wasip1", "plan9":
		t.Skip("no advisory locking on this platform")
	}
	_, path := openTestStore(t)

	_, err := Open(path)
	require.ErrorIs(t, err, ErrLocked)
}

func TestReopenAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.PutPrediction(Prediction{Key: Key{"ms", "1", 1}, Label: "क"}))
	require.NoError(t, s.Close())

	s, err = Open(path, Options{BusyTimeout: time.Second, MaxConnections: 2})
	require.NoError(t, err)
	defer s.Close()

	a, err := s.Get(Key{"ms", "1", 1})
	require.NoError(t, err)
	assert.Equal(t, "क", a.Predicted)
}

func TestMigrations(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Ping(context.Background()))

	status, err := s.MigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, status.LatestVersion, status.CurrentVersion)
	assert.Empty(t, status.Pending)
	assert.Len(t, status.Applied, len(migrations))

	// Re-running is a no-op
	require.NoError(t, MigrateDB(s.db))

	require.NoError(t, RollbackMigration(s.db))
	status, err = GetMigrationStatus(s.db)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentVersion)
	require.Len(t, status.Pending, 1)

	require.NoError(t, MigrateDB(s.db))
	status, err = GetMigrationStatus(s.db)
	require.NoError(t, err)
	assert.Equal(t, status.LatestVersion, status.CurrentVersion)
}

func TestPutPredictionAndGet(t *testing.T) {
	s, _ := openTestStore(t)
	k := Key{Manuscript: "gita", Page: "12", Line: 3}

	require.NoError(t, s.PutPrediction(Prediction{
		Key:        k,
		ImagePath:  "lines/12/3.png",
		Label:      "धर्मक्षेत्रे",
		Confidence: 0.87,
	}))

	a, err := s.Get(k)
	require.NoError(t, err)
	assert.Equal(t, k, a.Key)
	assert.Equal(t, "lines/12/3.png", a.ImagePath)
	assert.Equal(t, "धर्मक्षेत्रे", a.Predicted)
	assert.InDelta(t, 0.87, a.Confidence, 1e-9)
	assert.False(t, a.Annotated())
	assert.Nil(t, a.Distance)
	assert.NoError(t, VerifyAnnotation(a))
	assert.False(t, a.CreatedAt.IsZero())
}

func TestGetNotFound(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.Get(Key{"none", "1", 1})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetGroundTruth(t *testing.T) {
	s, _ := openTestStore(t)
	k := Key{"gita", "1", 1}
	require.NoError(t, s.PutPrediction(Prediction{Key: k, Label: "नमस्त"}))
	require.NoError(t, s.SetDistance(k, 4))

	prev, err := s.SetGroundTruth(k, "नमस्ते")
	require.NoError(t, err)
	assert.Equal(t, "", prev)

	a, err := s.Get(k)
	require.NoError(t, err)
	require.True(t, a.Annotated())
	assert.Equal(t, "नमस्ते", *a.GroundTruth)
	assert.Equal(t, "नमस्त", a.Predicted)
	assert.Nil(t, a.Distance, "a new label makes the distance stale")
	assert.NoError(t, VerifyAnnotation(a))

	prev, err = s.SetGroundTruth(k, "नमः")
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते", prev)
}

func TestSetGroundTruthCreatesLine(t *testing.T) {
	s, _ := openTestStore(t)
	k := Key{"gita", "2", 9}

	_, err := s.SetGroundTruth(k, "राम")
	require.NoError(t, err)

	a, err := s.Get(k)
	require.NoError(t, err)
	assert.Equal(t, "", a.Predicted)
	assert.Equal(t, "राम", *a.GroundTruth)
}

func TestPutPredictionKeepsGroundTruth(t *testing.T) {
	s, _ := openTestStore(t)
	k := Key{"gita", "1", 1}
	_, err := s.SetGroundTruth(k, "राम")
	require.NoError(t, err)

	require.NoError(t, s.PutPrediction(Prediction{Key: k, Label: "रम"}))

	a, err := s.Get(k)
	require.NoError(t, err)
	require.NotNil(t, a.GroundTruth)
	assert.Equal(t, "राम", *a.GroundTruth)
	assert.Equal(t, "रम", a.Predicted)
	assert.NoError(t, VerifyAnnotation(a))
}

func TestSetDistance(t *testing.T) {
	s, _ := openTestStore(t)
	k := Key{"gita", "1", 1}
	require.NoError(t, s.PutPrediction(Prediction{Key: k, Label: "क"}))

	require.NoError(t, s.SetDistance(k, 2))
	a, err := s.Get(k)
	require.NoError(t, err)
	require.NotNil(t, a.Distance)
	assert.Equal(t, 2, *a.Distance)

	err = s.SetDistance(Key{"gita", "1", 2}, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPageAndManuscript(t *testing.T) {
	s, _ := openTestStore(t)

	for _, k := range []Key{
		{"b", "1", 1},
		{"a", "2", 10},
		{"a", "2", 2},
		{"a", "1", 1},
	} {
		require.NoError(t, s.PutPrediction(Prediction{Key: k, Label: k.String()}))
	}

	page, err := s.ListPage("a", "2")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 2, page[0].Key.Line)
	assert.Equal(t, 10, page[1].Key.Line, "lines sort numerically")

	ms, err := s.ListManuscript("a")
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, Key{"a", "1", 1}, ms[0].Key)

	all, err := s.ListManuscript("")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	names, err := s.Manuscripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestRecognitionLog(t *testing.T) {
	s, _ := openTestStore(t)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id, err := s.LogRecognition(&Recognition{
		ImagePath:  "p1/l1.png",
		Predicted:  "क",
		Confidence: 0.5,
		Timestamp:  ts,
		Manuscript: "gita",
		Page:       "1",
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.LogRecognition(&Recognition{ImagePath: "x.png", Predicted: "ख", Manuscript: "other"})
	require.NoError(t, err)

	logs, err := s.Recognitions("gita")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "क", logs[0].Predicted)
	assert.True(t, logs[0].Timestamp.Equal(ts))

	all, err := s.Recognitions("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestVerifyLabels(t *testing.T) {
	s, _ := openTestStore(t)
	good := Key{"gita", "1", 1}
	bad := Key{"gita", "1", 2}
	require.NoError(t, s.PutPrediction(Prediction{Key: good, Label: "क"}))
	require.NoError(t, s.PutPrediction(Prediction{Key: bad, Label: "ख", GroundTruth: strPtr("ख")}))

	corrupted, err := s.VerifyLabels("")
	require.NoError(t, err)
	assert.Empty(t, corrupted)

	// Edit behind the store's back
	_, err = s.db.Exec(`UPDATE annotations SET ground_truth = 'ग' WHERE line = 2`)
	require.NoError(t, err)

	corrupted, err = s.VerifyLabels("gita")
	require.NoError(t, err)
	assert.Equal(t, []Key{bad}, corrupted)
}

func TestFingerprint(t *testing.T) {
	k := Key{"m", "p", 1}
	base := Fingerprint(k, "ab", nil)

	assert.Equal(t, base, Fingerprint(k, "ab", nil))
	assert.NotEqual(t, base, Fingerprint(k, "ab", strPtr("")), "empty truth differs from none")
	assert.NotEqual(t, base, Fingerprint(Key{"m", "p", 2}, "ab", nil))
	// Length prefixes keep field boundaries distinct
	assert.NotEqual(t,
		Fingerprint(Key{"ab", "c", 1}, "", nil),
		Fingerprint(Key{"a", "bc", 1}, "", nil))
}

const predictionsDoc = `{
  "gita": {
    "1": {
      "2": {"predicted_label": "क्ष", "confidence_score": 0.4, "image_path": "1/2.png"},
      "1": {"predicted_label": "धर्म", "confidence_score": 0.9, "ground_truth": "धर्म"}
    }
  }
}`

func TestParsePredictions(t *testing.T) {
	preds, err := ParsePredictions(strings.NewReader(predictionsDoc))
	require.NoError(t, err)
	require.Len(t, preds, 2)

	assert.Equal(t, Key{"gita", "1", 1}, preds[0].Key)
	require.NotNil(t, preds[0].GroundTruth)
	assert.Equal(t, "धर्म", *preds[0].GroundTruth)
	assert.Equal(t, "1/2.png", preds[1].ImagePath)
	assert.InDelta(t, 0.4, preds[1].Confidence, 1e-9)
}

func TestParsePredictionsSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", `{}`},
		{"non-numeric line", `{"m": {"1": {"one": {"predicted_label": "क"}}}}`},
		{"missing label", `{"m": {"1": {"1": {"confidence_score": 0.5}}}}`},
		{"confidence out of range", `{"m": {"1": {"1": {"predicted_label": "क", "confidence_score": 2}}}}`},
		{"unknown field", `{"m": {"1": {"1": {"predicted_label": "क", "colour": "red"}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePredictions(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "schema validation")
		})
	}
}

func TestParsePredictionsDuplicateLine(t *testing.T) {
	_, err := ParsePredictions(strings.NewReader(`{"m": {"1": {"1": {"predicted_label": "क"}, "01": {"predicted_label": "ख"}}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate line")
}

func TestImportExport(t *testing.T) {
	s, _ := openTestStore(t)

	preds, err := ParsePredictions(strings.NewReader(predictionsDoc))
	require.NoError(t, err)

	n, err := s.Import(preds)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	logs, err := s.Recognitions("gita")
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	require.NoError(t, s.SetDistance(Key{"gita", "1", 1}, 0))

	doc, err := s.Export("gita")
	require.NoError(t, err)
	require.Contains(t, doc, "gita")
	line := doc["gita"]["1"]["1"]
	assert.Equal(t, "धर्म", line.Predicted)
	require.NotNil(t, line.Distance)
	assert.Equal(t, 0, *line.Distance)
	assert.Nil(t, doc["gita"]["1"]["2"].GroundTruth)

	// An exported document imports cleanly
	again, err := doc.Predictions()
	require.NoError(t, err)
	assert.Equal(t, preds, again)
}
